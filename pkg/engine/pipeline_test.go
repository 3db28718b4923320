package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/format"
)

func newTestPipeline(fetcher *fakeFetcher) *Pipeline {
	return NewPipeline(zerolog.Nop(), format.NewRegistry(), fetcher)
}

// A document with a unit-attributed field and a marked entry point returning
// the document data serializes the folded quantity, not the raw expression.
func TestPipeline_UnitFoldedIntoSerializedOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "person.weft", `
name:   "Joe Schmo"
height: "6ft + 1in" @unit(cm)

main: """
	result = self
	""" @fn(main)
`)

	p := newTestPipeline(newFakeFetcher())
	res := p.Run(context.Background(), NewOptions(path))
	if res.State != StateCompleted {
		t.Fatalf("expected completed state, got %s (err: %v)", res.State, res.Err)
	}

	var out, errOut bytes.Buffer
	c := NewCommitter(&out, &errOut, p.Registry())
	c.SetValueFormat(format.TOML)
	if err := c.Commit(res); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	rendered := out.String()
	if !strings.Contains(rendered, "height = 185.42") {
		t.Errorf("expected folded height 185.42, got %q", rendered)
	}
	if !strings.Contains(rendered, "Joe Schmo") {
		t.Errorf("expected name in output, got %q", rendered)
	}
}

// Two marked functions with no override fail with an ambiguity diagnostic
// naming both candidates.
func TestPipeline_AmbiguousEntryPoint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "two.weft", `
first: """
	result = 1
	""" @fn(main)

second: """
	result = 2
	""" @fn(main)
`)

	p := newTestPipeline(newFakeFetcher())
	res := p.Run(context.Background(), NewOptions(path))
	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}
	if res.Err.Code != CodeAmbiguousEntryPoint {
		t.Fatalf("expected ambiguous entry point, got %s", res.Err.Code)
	}
	for _, candidate := range []string{"root.first", "root.second"} {
		if !strings.Contains(res.Err.Message, candidate) {
			t.Errorf("diagnostic does not name %s: %s", candidate, res.Err.Message)
		}
	}
}

// An awaited fetch to an unreachable URI fails the invocation at the task
// stage with a fetch cause, and the committer emits only the diagnostic.
func TestPipeline_UnreachableFetchEmitsOnlyDiagnostic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fetching.weft", `
main: """
	pln("starting")
	t = fetch("http://unreachable.test/data.json")
	v = await(t)
	result = "done"
	""" @fn(main)
`)

	fetcher := newFakeFetcher()
	fetcher.fail("http://unreachable.test/data.json", errors.New("no route to host"))

	p := newTestPipeline(fetcher)
	opts := NewOptions(path)
	opts.Allow = []string{"http"}
	res := p.Run(context.Background(), opts)

	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}
	if res.Err.Code != CodeExecutionError || res.Err.Stage != StageTask {
		t.Fatalf("expected execution error at task stage, got %s/%s", res.Err.Code, res.Err.Stage)
	}
	var cause *DriverError
	if !errors.As(res.Err.Err, &cause) || cause.Code != CodeFetchError {
		t.Errorf("expected fetch cause, got %v", res.Err.Err)
	}

	var out, errOut bytes.Buffer
	if err := NewCommitter(&out, &errOut, p.Registry()).Commit(res); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no normal output, got %q", out.String())
	}
	if !strings.HasPrefix(errOut.String(), "error: ") {
		t.Errorf("expected a diagnostic, got %q", errOut.String())
	}
}

// A per-invocation fetch timeout bounds fetch tasks even when the fetcher
// itself would wait forever.
func TestPipeline_FetchTimeoutBoundsTasks(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "slow.weft", `
main: """
	t = fetch("http://data.test/slow.json")
	v = await(t)
	""" @fn(main)
`)

	fetcher := newFakeFetcher()
	fetcher.respond("http://data.test/slow.json", []byte(`{}`), "application/json")
	fetcher.gate("http://data.test/slow.json") // never released

	p := newTestPipeline(fetcher)
	opts := NewOptions(path)
	opts.Allow = []string{"http"}
	opts.FetchTimeout = 30 * time.Millisecond

	done := make(chan *Result, 1)
	go func() {
		done <- p.Run(context.Background(), opts)
	}()

	select {
	case res := <-done:
		if res.State != StateFailed {
			t.Fatalf("expected failed state, got %s", res.State)
		}
		if !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Errorf("expected a deadline cause, got %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fetch timeout did not bound the task")
	}
}

// An unrecognized extension with no format override fails during resolution.
func TestPipeline_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "payload.xyz", "who knows")

	p := newTestPipeline(newFakeFetcher())
	res := p.Run(context.Background(), NewOptions(path))

	if res.State != StateFailed {
		t.Fatalf("expected failed state, got %s", res.State)
	}
	if res.Err.Code != CodeUnknownFormat {
		t.Errorf("expected unknown format, got %s", res.Err.Code)
	}
}

// Arguments flow into the entry function's environment.
func TestPipeline_ArgsReachEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "args.weft", `
main: """
	result = "hello " + who
	""" @fn(main)
`)

	p := newTestPipeline(newFakeFetcher())
	opts := NewOptions(path)
	opts.Args = map[string]any{"who": "world"}
	res := p.Run(context.Background(), opts)

	if res.State != StateCompleted {
		t.Fatalf("expected completed state, got %s (err: %v)", res.State, res.Err)
	}
	if res.Value != "hello world" {
		t.Errorf("expected 'hello world', got %v", res.Value)
	}
}

// Marked functions inside nested scopes are reachable entry points.
func TestPipeline_NestedEntryPoint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nested.weft", `
tools: {
	report: """
		pln("nested entry ran")
		""" @fn(main)
}
`)

	p := newTestPipeline(newFakeFetcher())
	res := p.Run(context.Background(), NewOptions(path))
	if res.State != StateCompleted {
		t.Fatalf("expected completed state, got %s (err: %v)", res.State, res.Err)
	}
	if res.EntryPoint != "root.tools.report" {
		t.Errorf("expected entry root.tools.report, got %s", res.EntryPoint)
	}
}
