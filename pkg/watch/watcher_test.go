package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_RerunsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.weft")
	if err := os.WriteFile(src, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var runs atomic.Int64
	w := NewWatcher(zerolog.Nop())
	w.SetDebounce(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, src, func(context.Context) { runs.Add(1) })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// A save burst should settle into a single rerun.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(src, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatalf("failed to rewrite source: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("rerun callback never fired")
		case <-time.After(20 * time.Millisecond):
		}
	}

	// The burst was inside one debounce window.
	time.Sleep(150 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected one debounced rerun, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancellation")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "root.weft"), []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var runs atomic.Int64
	w := NewWatcher(zerolog.Nop())
	w.SetDebounce(50 * time.Millisecond)

	go func() { _ = w.Watch(ctx, dir, func(context.Context) { runs.Add(1) }) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.log"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write unrelated file: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Fatalf("expected no rerun for unrelated file, got %d", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "extra.weft"), []byte("b: 2\n"), 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("rerun callback never fired for document change")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcher_MissingSource(t *testing.T) {
	w := NewWatcher(zerolog.Nop())
	err := w.Watch(t.Context(), filepath.Join(t.TempDir(), "absent.weft"), func(context.Context) {})
	if err == nil {
		t.Fatal("expected an error for a missing source")
	}
}
