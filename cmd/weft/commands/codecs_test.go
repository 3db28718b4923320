package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/weftlang/weft/pkg/format"
)

func TestLoadWASMCodecs(t *testing.T) {
	reg := format.NewRegistry()

	if _, err := loadWASMCodecs(context.Background(), reg, []string{"csv"}); err == nil {
		t.Error("expected error for a spec without a module path")
	}
	if _, err := loadWASMCodecs(context.Background(), reg, []string{"csv=missing.wasm"}); err == nil {
		t.Error("expected error for a missing module file")
	}

	path := filepath.Join(t.TempDir(), "bad.wasm")
	if err := os.WriteFile(path, []byte("not a wasm module"), 0o644); err != nil {
		t.Fatalf("failed to write module: %v", err)
	}
	if _, err := loadWASMCodecs(context.Background(), reg, []string{"csv=" + path}); err == nil {
		t.Error("expected error for invalid module bytes")
	}

	closer, err := loadWASMCodecs(context.Background(), reg, nil)
	if err != nil {
		t.Fatalf("unexpected error for an empty plugin list: %v", err)
	}
	closer()
}
