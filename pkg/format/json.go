package format

import (
	"encoding/json"
	"fmt"

	"github.com/weftlang/weft/pkg/doc"
)

// jsonCodec is the JSON format plugin. Lossy conversions: functions and unit
// attributes cannot be expressed; quantities encode as their magnitude.
type jsonCodec struct{}

func (jsonCodec) ID() ID { return JSON }

func (jsonCodec) Decode(name string, data []byte) (*doc.Document, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	return doc.FromData(name, m), nil
}

func (jsonCodec) Encode(v any) ([]byte, error) {
	out, err := json.MarshalIndent(dataProjection(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(out, '\n'), nil
}

// dataProjection reduces a codec input to plain data: document handles fold
// to their data tree, everything else passes through.
func dataProjection(v any) any {
	if d, ok := v.(*doc.Document); ok {
		return d.Data()
	}
	return flattenQuantities(v)
}

// flattenQuantities folds quantities inside plain values into magnitudes.
func flattenQuantities(v any) any {
	switch val := v.(type) {
	case doc.Quantity:
		return val.Value
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = flattenQuantities(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = flattenQuantities(item)
		}
		return out
	default:
		return v
	}
}
