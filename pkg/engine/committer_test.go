package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/weftlang/weft/pkg/format"
)

func TestCommitter_FlushesCompletedInvocationInOrder(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewCommitter(&out, &errOut, format.NewRegistry())

	res := &Result{
		State: StateCompleted,
		Events: []OutputEvent{
			{Seq: 0, Kind: EventLine, Text: "first"},
			{Seq: 1, Kind: EventErrorLine, Text: "warned"},
			{Seq: 2, Kind: EventLine, Text: "second"},
			{Seq: 3, Kind: EventValue, Value: "returned"},
		},
	}
	if err := c.Commit(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := out.String(), "first\nsecond\nreturned\n"; got != want {
		t.Errorf("expected output %q, got %q", want, got)
	}
	if got, want := errOut.String(), "warned\n"; got != want {
		t.Errorf("expected error output %q, got %q", want, got)
	}
}

func TestCommitter_FailureSuppressesOutputByDefault(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewCommitter(&out, &errOut, format.NewRegistry())

	res := &Result{
		State: StateFailed,
		Err:   NewFetchError("http://unreachable.test/doc", nil),
		Events: []OutputEvent{
			{Seq: 0, Kind: EventLine, Text: "emitted before failure"},
		},
	}
	if err := c.Commit(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
	diag := errOut.String()
	if !strings.HasPrefix(diag, "error: ") {
		t.Errorf("expected a diagnostic, got %q", diag)
	}
	if strings.Contains(diag, "emitted before failure") {
		t.Errorf("diagnostic leaks suppressed output: %q", diag)
	}
}

func TestCommitter_PartialOutputOptIn(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewCommitter(&out, &errOut, format.NewRegistry())
	c.SetPartialOnFailure(true)

	res := &Result{
		State: StateFailed,
		Err:   NewFetchError("http://unreachable.test/doc", nil),
		Events: []OutputEvent{
			{Seq: 0, Kind: EventLine, Text: "partial line"},
		},
	}
	if err := c.Commit(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := out.String(), "partial line\n"; got != want {
		t.Errorf("expected partial output %q, got %q", want, got)
	}
	if !strings.Contains(errOut.String(), "error: ") {
		t.Errorf("expected diagnostic alongside partial output, got %q", errOut.String())
	}
}

func TestCommitter_RendersStructuredValueAsJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewCommitter(&out, &errOut, format.NewRegistry())

	res := &Result{
		State: StateCompleted,
		Events: []OutputEvent{
			{Seq: 0, Kind: EventValue, Value: map[string]any{"answer": int64(42)}},
		},
	}
	if err := c.Commit(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"answer"`) {
		t.Errorf("expected JSON rendering, got %q", out.String())
	}
}

func TestCommitter_ValueFormatSelectsCodec(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewCommitter(&out, &errOut, format.NewRegistry())
	c.SetValueFormat(format.TOML)

	res := &Result{
		State: StateCompleted,
		Events: []OutputEvent{
			{Seq: 0, Kind: EventValue, Value: map[string]any{"name": "weft", "count": int64(2)}},
		},
	}
	if err := c.Commit(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rendered := out.String()
	if !strings.Contains(rendered, "name = ") || !strings.Contains(rendered, "count = 2") {
		t.Errorf("expected TOML rendering, got %q", rendered)
	}
}
