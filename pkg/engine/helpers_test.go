package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/doc"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
)

// fakeResponse is one canned fetch outcome.
type fakeResponse struct {
	body  []byte
	ctype string
	err   error
}

// fakeFetcher serves canned responses and can hold a response back behind a
// gate channel to control completion order in tests.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	gates     map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]fakeResponse),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) respond(url string, body []byte, ctype string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = fakeResponse{body: body, ctype: ctype}
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = fakeResponse{err: err}
}

// gate makes the response for url wait until the returned function is
// called.
func (f *fakeFetcher) gate(url string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[url] = ch
	return func() { close(ch) }
}

func (f *fakeFetcher) Get(ctx context.Context, url string, _ *fetch.Credentials) ([]byte, string, error) {
	f.mu.Lock()
	gate := f.gates[url]
	resp, ok := f.responses[url]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if !ok {
		return nil, "", &fetch.Error{Kind: fetch.KindNetwork, URL: url, Err: context.DeadlineExceeded}
	}
	if resp.err != nil {
		return nil, "", resp.err
	}
	return resp.body, resp.ctype, nil
}

// newTestContext builds an execution context with the http capability
// granted.
func newTestContext(t *testing.T, fetcher fetch.Fetcher) *ExecutionContext {
	t.Helper()
	pol, err := policy.NewEngine(zerolog.Nop(), []string{"http"})
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	ec := NewExecutionContext(context.Background(), zerolog.Nop(), fetcher, format.NewRegistry(), pol)
	t.Cleanup(ec.Close)
	return ec
}

// mustParse parses a native document or fails the test.
func mustParse(t *testing.T, src string) *doc.Document {
	t.Helper()
	d, err := doc.ParseNative("test.weft", []byte(src))
	if err != nil {
		t.Fatalf("failed to parse document: %v", err)
	}
	return d
}

// mustEntry selects the document's single marked entry point.
func mustEntry(t *testing.T, d *doc.Document) *doc.Function {
	t.Helper()
	entry, err := SelectEntry(d, DefaultMarker, "", true)
	if err != nil {
		t.Fatalf("failed to select entry point: %v", err)
	}
	return entry
}

// lines extracts the text of every event of one kind, in sequence order.
func lines(events []OutputEvent, kind EventKind) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev.Text)
		}
	}
	return out
}
