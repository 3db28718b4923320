package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/weftlang/weft/pkg/format"
)

// loadWASMCodecs registers external codec plugins, given as id=path.wasm
// pairs, with the registry. Each plugin's identifier also becomes a file
// extension so documents resolve to it by name. The returned closer releases
// the guest modules.
func loadWASMCodecs(ctx context.Context, reg *format.Registry, specs []string) (func(), error) {
	var loaded []*format.WASMCodec
	closer := func() {
		for _, c := range loaded {
			_ = c.Close(context.Background())
		}
	}

	for _, spec := range specs {
		id, path, ok := strings.Cut(spec, "=")
		if !ok || id == "" || path == "" {
			closer()
			return nil, fmt.Errorf("codec %q must have the form id=path.wasm", spec)
		}
		module, err := os.ReadFile(path)
		if err != nil {
			closer()
			return nil, fmt.Errorf("failed to read codec module: %w", err)
		}
		codec, err := format.LoadWASMCodec(ctx, format.ID(id), module, nil)
		if err != nil {
			closer()
			return nil, fmt.Errorf("failed to load codec %s: %w", id, err)
		}
		reg.Register(codec, []string{"." + id}, nil)
		loaded = append(loaded, codec)
	}

	return closer, nil
}
