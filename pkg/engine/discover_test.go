package engine

import (
	"errors"
	"strings"
	"testing"
)

const discoverDoc = `
greet: """
	result = "hi"
	""" @fn(main)

util: {
	helper: """
		result = "helper"
		""" @fn(test)

	inner: """
		result = "inner"
		""" @fn(main, timeout=30)
}

plain: "just data"
`

func TestDiscover(t *testing.T) {
	d := mustParse(t, discoverDoc)

	tests := []struct {
		name      string
		marker    string
		nested    bool
		wantPaths []string
	}{
		{
			name:      "default marker nested",
			marker:    "main",
			nested:    true,
			wantPaths: []string{"root.greet", "root.util.inner"},
		},
		{
			name:      "default marker top level only",
			marker:    "main",
			nested:    false,
			wantPaths: []string{"root.greet"},
		},
		{
			name:      "custom marker",
			marker:    "test",
			nested:    true,
			wantPaths: []string{"root.util.helper"},
		},
		{
			name:      "unknown marker",
			marker:    "bench",
			nested:    true,
			wantPaths: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fns := Discover(d, tt.marker, tt.nested)
			if len(fns) != len(tt.wantPaths) {
				t.Fatalf("expected %d functions, got %d", len(tt.wantPaths), len(fns))
			}
			for i, fn := range fns {
				if fn.Path != tt.wantPaths[i] {
					t.Errorf("function %d: expected path %s, got %s", i, tt.wantPaths[i], fn.Path)
				}
			}
		})
	}
}

func TestSelectEntry(t *testing.T) {
	d := mustParse(t, discoverDoc)

	t.Run("single candidate", func(t *testing.T) {
		fn, err := SelectEntry(d, "test", "", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fn.Path != "root.util.helper" {
			t.Errorf("expected root.util.helper, got %s", fn.Path)
		}
	})

	t.Run("ambiguous candidates name every option", func(t *testing.T) {
		_, err := SelectEntry(d, "main", "", true)
		var derr *DriverError
		if !errors.As(err, &derr) || derr.Code != CodeAmbiguousEntryPoint {
			t.Fatalf("expected ambiguous entry point error, got %v", err)
		}
		for _, path := range []string{"root.greet", "root.util.inner"} {
			if !strings.Contains(derr.Message, path) {
				t.Errorf("diagnostic does not name candidate %s: %s", path, derr.Message)
			}
		}
	})

	t.Run("no candidate", func(t *testing.T) {
		_, err := SelectEntry(d, "bench", "", true)
		var derr *DriverError
		if !errors.As(err, &derr) || derr.Code != CodeNoEntryPoint {
			t.Fatalf("expected no entry point error, got %v", err)
		}
	})

	t.Run("override by path beats discovery", func(t *testing.T) {
		fn, err := SelectEntry(d, "main", "root.util.inner", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fn.Path != "root.util.inner" {
			t.Errorf("expected root.util.inner, got %s", fn.Path)
		}
	})

	t.Run("override by bare name", func(t *testing.T) {
		fn, err := SelectEntry(d, "main", "helper", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fn.Path != "root.util.helper" {
			t.Errorf("expected root.util.helper, got %s", fn.Path)
		}
	})

	t.Run("override naming nothing", func(t *testing.T) {
		_, err := SelectEntry(d, "main", "missing", true)
		var derr *DriverError
		if !errors.As(err, &derr) || derr.Code != CodeNoEntryPoint {
			t.Fatalf("expected no entry point error, got %v", err)
		}
	})
}

func TestDiscover_EntryAttributes(t *testing.T) {
	d := mustParse(t, discoverDoc)
	fns := Discover(d, "main", true)
	if len(fns) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(fns))
	}
	if v, ok := fns[1].Attr("timeout"); !ok || v != "30" {
		t.Errorf("expected timeout attribute 30, got %q (present: %v)", v, ok)
	}
}
