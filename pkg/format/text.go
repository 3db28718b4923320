package format

import (
	"fmt"

	"github.com/weftlang/weft/pkg/doc"
)

// textCodec backs the plain-text and Markdown plugins: the whole payload
// becomes one string field on the document root. Lossy conversions: all
// structure beyond that single field is dropped on encode unless the encoded
// value is itself a string.
type textCodec struct {
	id    ID
	field string
}

func (c textCodec) ID() ID { return c.id }

func (c textCodec) Decode(name string, data []byte) (*doc.Document, error) {
	d := doc.New(name)
	d.Root.Fields = append(d.Root.Fields, doc.Field{Name: c.field, Value: string(data)})
	return d, nil
}

func (c textCodec) Encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return []byte(val), nil
	case []byte:
		return val, nil
	case *doc.Document:
		if text, ok := val.Lookup(c.field); ok {
			if s, ok := text.(string); ok {
				return []byte(s), nil
			}
		}
		return nil, fmt.Errorf("document has no %q field to encode as %s", c.field, c.id)
	default:
		return []byte(fmt.Sprint(flattenQuantities(v))), nil
	}
}
