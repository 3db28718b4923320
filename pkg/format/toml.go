package format

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/weftlang/weft/pkg/doc"
)

// tomlCodec is the TOML format plugin. Lossy conversions: functions and unit
// attributes cannot be expressed, quantities encode as their magnitude, and
// non-table top-level values encode under a "value" key because TOML has no
// top-level scalars.
type tomlCodec struct{}

func (tomlCodec) ID() ID { return TOML }

func (tomlCodec) Decode(name string, data []byte) (*doc.Document, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid TOML document: %w", err)
	}
	return doc.FromData(name, m), nil
}

func (tomlCodec) Encode(v any) ([]byte, error) {
	data := dataProjection(v)
	if _, ok := data.(map[string]any); !ok {
		data = map[string]any{"value": data}
	}
	out, err := toml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode TOML: %w", err)
	}
	return out, nil
}
