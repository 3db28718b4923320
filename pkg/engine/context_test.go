package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
)

func TestExecute_OutputOrderIndependentOfFetchCompletion(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.respond("http://data.test/a.json", []byte(`{"v": "A"}`), "application/json")
	fetcher.respond("http://data.test/b.json", []byte(`{"v": "B"}`), "application/json")

	// Hold fetch A back so B completes first; logical output order must
	// still follow program order.
	release := fetcher.gate("http://data.test/a.json")
	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	d := mustParse(t, `
entry: """
	t1 = fetch("http://data.test/a.json")
	t2 = fetch("http://data.test/b.json")
	pln("before")
	ra = await(t1)
	pln("a:" + ra["v"])
	rb = await(t2)
	pln("b:" + rb["v"])
	result = "done"
	""" @fn(main)
`)

	ec := newTestContext(t, fetcher)
	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)

	if res.State != StateCompleted {
		t.Fatalf("expected completed state, got %s (err: %v)", res.State, res.Err)
	}
	got := lines(res.Events, EventLine)
	want := []string{"before", "a:A", "b:B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected output %v, got %v", want, got)
	}

	last := res.Events[len(res.Events)-1]
	if last.Kind != EventValue || last.Value != "done" {
		t.Errorf("expected trailing value event 'done', got %+v", last)
	}
	for i, ev := range res.Events {
		if ev.Seq != int64(i) {
			t.Errorf("event %d carries sequence %d", i, ev.Seq)
		}
	}
}

func TestExecute_DrainsSpawnedTasksAfterEntryReturns(t *testing.T) {
	d := mustParse(t, `
entry: """
	def side():
	    pln("side effect")

	spawn(side)
	pln("entry done")
	result = "ok"
	""" @fn(main)
`)

	ec := newTestContext(t, newFakeFetcher())
	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)

	if res.State != StateCompleted {
		t.Fatalf("expected completed state, got %s (err: %v)", res.State, res.Err)
	}
	got := lines(res.Events, EventLine)
	want := []string{"entry done", "side effect"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected spawned task to run before settlement, got %v", got)
	}
}

func TestExecute_AwaitRunsOtherReadyTasksWhileSuspended(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.respond("http://data.test/slow.json", []byte(`{"v": "S"}`), "application/json")
	release := fetcher.gate("http://data.test/slow.json")
	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	d := mustParse(t, `
entry: """
	def filler():
	    pln("filler ran")

	slow = fetch("http://data.test/slow.json")
	spawn(filler)
	rs = await(slow)
	pln("slow:" + rs["v"])
	""" @fn(main)
`)

	ec := newTestContext(t, fetcher)
	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)

	if res.State != StateCompleted {
		t.Fatalf("expected completed state, got %s (err: %v)", res.State, res.Err)
	}
	got := lines(res.Events, EventLine)
	want := []string{"filler ran", "slow:S"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected pending task to progress during await, got %v", got)
	}
}

func TestExecute_AwaitedFetchFailureSettlesAsTaskFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail("http://unreachable.test/doc.json", errors.New("connection refused"))

	d := mustParse(t, `
entry: """
	pln("about to fetch")
	t = fetch("http://unreachable.test/doc.json")
	v = await(t)
	result = "never reached"
	""" @fn(main)
`)

	ec := newTestContext(t, fetcher)
	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)

	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}
	if res.Err.Code != CodeExecutionError {
		t.Errorf("expected code %s, got %s", CodeExecutionError, res.Err.Code)
	}
	if res.Err.Stage != StageTask {
		t.Errorf("expected stage %s, got %s", StageTask, res.Err.Stage)
	}
	var cause *DriverError
	if !errors.As(res.Err.Err, &cause) || cause.Code != CodeFetchError {
		t.Errorf("expected a fetch error cause, got %v", res.Err.Err)
	}
	if ec.State() != StateFailed {
		t.Errorf("expected context state failed, got %s", ec.State())
	}
}

func TestExecute_UnawaitedFetchFailureSurfacesAtDrain(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail("http://unreachable.test/doc.json", errors.New("connection refused"))

	d := mustParse(t, `
entry: """
	t = fetch("http://unreachable.test/doc.json")
	result = "returned without awaiting"
	""" @fn(main)
`)

	ec := newTestContext(t, fetcher)
	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)

	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}
	if res.Err.Stage != StageTask {
		t.Errorf("expected stage %s, got %s", StageTask, res.Err.Stage)
	}
	var cause *DriverError
	if !errors.As(res.Err.Err, &cause) || cause.Code != CodeFetchError {
		t.Errorf("expected a fetch error cause, got %v", res.Err.Err)
	}
}

func TestExecute_DrainFailureCancelsPendingSiblings(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.respond("http://data.test/slow.json", []byte(`{}`), "application/json")
	fetcher.gate("http://data.test/slow.json") // released only by cancellation
	fetcher.fail("http://data.test/broken.json", errors.New("connection refused"))

	d := mustParse(t, `
entry: """
	slow = fetch("http://data.test/slow.json")
	broken = fetch("http://data.test/broken.json")
	result = "returned without awaiting"
	""" @fn(main)
`)

	ec := newTestContext(t, fetcher)

	done := make(chan *Result, 1)
	go func() {
		done <- NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)
	}()

	select {
	case res := <-done:
		if res.State != StateFailed {
			t.Fatalf("expected failed state, got %s", res.State)
		}
		// The reported failure is the broken fetch, not the still-pending
		// sibling its cancellation unblocked.
		if !strings.Contains(res.Err.Error(), "broken.json") {
			t.Errorf("expected the broken fetch as the cause, got %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not cancel the pending sibling fetch")
	}
}

func TestExecute_FailureSuppressesFurtherOutput(t *testing.T) {
	d := mustParse(t, `
entry: """
	pln("reached")
	fail("boom")
	""" @fn(main)
`)

	ec := newTestContext(t, newFakeFetcher())
	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)

	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}

	// The log keeps what was emitted before the failure, frozen there.
	got := lines(res.Events, EventLine)
	if !reflect.DeepEqual(got, []string{"reached"}) {
		t.Errorf("expected frozen log [reached], got %v", got)
	}

	ec.Print("after failure")
	if len(ec.Events()) != len(res.Events) {
		t.Error("expected no events to be recorded after failure")
	}
}

func TestExecute_PolicyDeniesFetchWithoutCapability(t *testing.T) {
	pol, err := policy.NewEngine(zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	ec := NewExecutionContext(context.Background(), zerolog.Nop(), newFakeFetcher(), format.NewRegistry(), pol)
	t.Cleanup(ec.Close)

	d := mustParse(t, `
entry: """
	t = fetch("http://data.test/a.json")
	""" @fn(main)
`)

	res := NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)
	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}
	var cause *DriverError
	if !errors.As(res.Err, &cause) || cause.Code != CodePolicyDenied {
		t.Errorf("expected policy denial, got %v", res.Err)
	}
}

func TestExecute_CancellationUnblocksAwait(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.respond("http://data.test/never.json", []byte(`{}`), "application/json")
	fetcher.gate("http://data.test/never.json") // never released

	pol, err := policy.NewEngine(zerolog.Nop(), []string{"http"})
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ec := NewExecutionContext(ctx, zerolog.Nop(), fetcher, format.NewRegistry(), pol)
	t.Cleanup(ec.Close)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	d := mustParse(t, `
entry: """
	t = fetch("http://data.test/never.json")
	v = await(t)
	""" @fn(main)
`)

	done := make(chan *Result, 1)
	go func() {
		done <- NewCoordinator(zerolog.Nop()).Execute(d, mustEntry(t, d), ec, nil)
	}()

	select {
	case res := <-done:
		if res.State != StateFailed {
			t.Fatalf("expected failed state, got %s", res.State)
		}
		var cause *DriverError
		if !errors.As(res.Err, &cause) || cause.Code != CodeCancelled {
			t.Errorf("expected cancellation, got %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not unblock on cancellation")
	}
}
