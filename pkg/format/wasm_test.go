package format

import (
	"context"
	"strings"
	"testing"
)

// A well-formed module carrying only the magic and version, no exports.
var emptyWASM = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestLoadWASMCodec_RejectsInvalidModule(t *testing.T) {
	_, err := LoadWASMCodec(context.Background(), "csv", []byte("not a wasm module"), nil)
	if err == nil {
		t.Fatal("expected error for invalid module bytes")
	}
}

func TestLoadWASMCodec_RequiresCodecExports(t *testing.T) {
	_, err := LoadWASMCodec(context.Background(), "csv", emptyWASM, nil)
	if err == nil {
		t.Fatal("expected error for a module without codec exports")
	}
	if !strings.Contains(err.Error(), "weft_decode") {
		t.Fatalf("error does not name the required exports: %v", err)
	}
}
