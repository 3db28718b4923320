package format

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/weftlang/weft/pkg/doc"
)

// yamlCodec is the YAML format plugin. Lossy conversions: functions and unit
// attributes cannot be expressed; quantities encode as their magnitude.
type yamlCodec struct{}

func (yamlCodec) ID() ID { return YAML }

func (yamlCodec) Decode(name string, data []byte) (*doc.Document, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML document: %w", err)
	}
	return doc.FromData(name, normalizeYAML(m)), nil
}

func (yamlCodec) Encode(v any) ([]byte, error) {
	out, err := yaml.Marshal(dataProjection(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return out, nil
}

// normalizeYAML rewrites yaml.v3's map[any]any values (possible for merged
// or non-string keys) into the string-keyed maps the document model uses.
func normalizeYAML(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeYAML(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAMLValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}
