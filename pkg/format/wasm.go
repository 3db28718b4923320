package format

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/weftlang/weft/pkg/doc"
)

// WASMCodecConfig configures the WASM codec host.
type WASMCodecConfig struct {
	// Timeout bounds each decode/encode call. Default 30s.
	Timeout time.Duration

	// MemoryLimitPages caps guest memory in 64KB pages. Default 256 (16MB).
	MemoryLimitPages uint32
}

// WASMCodec hosts an external format plugin compiled to WASM. The guest
// module must export linear memory plus malloc/free and two functions with
// the signature fn(ptr u32, len u32) -> u64, where the result packs the
// output as (ptr << 32) | len:
//
//	weft_decode: payload bytes in, JSON document data out
//	weft_encode: JSON document data in, payload bytes out
//
// Decoded data is projected into a data-only document handle; like the other
// data codecs, WASM plugins cannot express functions or unit attributes.
type WASMCodec struct {
	id      ID
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	malloc  api.Function
	free    api.Function
	decode  api.Function
	encode  api.Function
	timeout time.Duration
}

// LoadWASMCodec instantiates a WASM format plugin under the given identifier.
// The returned codec must be closed when no longer needed.
func LoadWASMCodec(ctx context.Context, id ID, wasmModule []byte, cfg *WASMCodecConfig) (*WASMCodec, error) {
	if cfg == nil {
		cfg = &WASMCodecConfig{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 256
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	module, err := runtime.Instantiate(ctx, wasmModule)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate codec module: %w", err)
	}

	c := &WASMCodec{
		id:      id,
		runtime: runtime,
		module:  module,
		memory:  module.Memory(),
		malloc:  module.ExportedFunction("malloc"),
		free:    module.ExportedFunction("free"),
		decode:  module.ExportedFunction("weft_decode"),
		encode:  module.ExportedFunction("weft_encode"),
		timeout: cfg.Timeout,
	}

	if c.memory == nil || c.malloc == nil || c.free == nil || c.decode == nil || c.encode == nil {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, fmt.Errorf("codec module must export memory, malloc, free, weft_decode, weft_encode")
	}

	return c, nil
}

// ID returns the identifier this codec was loaded under.
func (c *WASMCodec) ID() ID { return c.id }

// Close releases the guest module and runtime.
func (c *WASMCodec) Close(ctx context.Context) error {
	if err := c.module.Close(ctx); err != nil {
		return err
	}
	return c.runtime.Close(ctx)
}

// Decode calls the guest decoder and projects its JSON output into a
// document handle.
func (c *WASMCodec) Decode(name string, data []byte) (*doc.Document, error) {
	out, err := c.call(c.decode, data)
	if err != nil {
		return nil, fmt.Errorf("weft_decode failed: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, fmt.Errorf("codec module returned invalid document data: %w", err)
	}
	return doc.FromData(name, m), nil
}

// Encode marshals the value to JSON document data and calls the guest
// encoder.
func (c *WASMCodec) Encode(v any) ([]byte, error) {
	in, err := json.Marshal(dataProjection(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document data: %w", err)
	}
	out, err := c.call(c.encode, in)
	if err != nil {
		return nil, fmt.Errorf("weft_encode failed: %w", err)
	}
	return out, nil
}

// call passes input through guest memory, invokes fn, and reads the packed
// (ptr << 32) | len result back out.
func (c *WASMCodec) call(fn api.Function, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var inputPtr, inputLen uint32
	if len(input) > 0 {
		results, err := c.malloc.Call(ctx, uint64(len(input)))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate guest memory: %w", err)
		}
		inputPtr = uint32(results[0])
		inputLen = uint32(len(input))
		defer c.free.Call(ctx, uint64(inputPtr)) //nolint:errcheck // best-effort release

		if !c.memory.Write(inputPtr, input) {
			return nil, fmt.Errorf("failed to write input to guest memory")
		}
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("guest call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("guest returned no result")
	}

	packed := results[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed & 0xFFFFFFFF)
	if outLen == 0 {
		return nil, nil
	}

	out, ok := c.memory.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("failed to read output from guest memory")
	}
	result := make([]byte, len(out))
	copy(result, out)
	c.free.Call(ctx, uint64(outPtr)) //nolint:errcheck // best-effort release

	return result, nil
}
