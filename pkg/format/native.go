package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/weftlang/weft/pkg/doc"
)

// nativeCodec is the native weft plugin: CUE syntax with @fn and @unit
// attributes. It round-trips the full document model. Lossy conversions:
// byte values encode as quoted strings, and comments in the original source
// are not preserved.
type nativeCodec struct{}

func (nativeCodec) ID() ID { return Native }

func (nativeCodec) Decode(name string, data []byte) (*doc.Document, error) {
	return doc.ParseNative(name, data)
}

func (nativeCodec) Encode(v any) ([]byte, error) {
	var b strings.Builder
	switch val := v.(type) {
	case *doc.Document:
		writeScopeBody(&b, val.Root, 0)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(&b, k, val[k], 0)
		}
	default:
		writeField(&b, "value", v, 0)
	}
	return []byte(b.String()), nil
}

// writeScopeBody emits a scope's fields, functions, and children in
// declaration order.
func writeScopeBody(b *strings.Builder, s *doc.Scope, depth int) {
	for _, f := range s.Fields {
		writeField(b, f.Name, f.Value, depth)
	}
	for _, fn := range s.Funcs {
		writeIndent(b, depth)
		b.WriteString(fieldLabel(fn.Name))
		b.WriteString(": ")
		b.WriteString(strconv.Quote(fn.Body))
		b.WriteString(" @fn(")
		b.WriteString(attrArgs(fn.Attrs))
		b.WriteString(")\n")
	}
	for _, child := range s.Children {
		writeIndent(b, depth)
		b.WriteString(fieldLabel(child.Name))
		b.WriteString(": {\n")
		writeScopeBody(b, child, depth+1)
		writeIndent(b, depth)
		b.WriteString("}\n")
	}
}

// writeField emits one data field, including a @unit attribute for
// quantities so the declared unit survives a round trip.
func writeField(b *strings.Builder, name string, v any, depth int) {
	writeIndent(b, depth)
	b.WriteString(fieldLabel(name))
	b.WriteString(": ")
	if q, ok := v.(doc.Quantity); ok {
		b.WriteString(formatFloat(q.Value))
		b.WriteString(" @unit(")
		b.WriteString(q.Unit)
		b.WriteString(")\n")
		return
	}
	writeValue(b, v, depth)
	b.WriteString("\n")
}

func writeValue(b *strings.Builder, v any, depth int) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(formatFloat(val))
	case string:
		b.WriteString(strconv.Quote(val))
	case []byte:
		b.WriteString(strconv.Quote(string(val)))
	case doc.Quantity:
		b.WriteString(formatFloat(val.Value))
	case []any:
		b.WriteString("[")
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, item, depth)
		}
		b.WriteString("]")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fieldLabel(k))
			b.WriteString(": ")
			writeValue(b, val[k], depth)
		}
		b.WriteString("}")
	default:
		b.WriteString(strconv.Quote(fmt.Sprint(val)))
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// CUE floats need a decimal point or exponent to stay floats.
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// fieldLabel quotes a field name unless it is a plain CUE identifier.
func fieldLabel(name string) string {
	if name == "" {
		return `""`
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !(isDigit && i > 0) {
			return strconv.Quote(name)
		}
	}
	return name
}

// attrArgs renders an attribute map as @fn arguments: markers first, then
// key=value pairs, sorted for stable output.
func attrArgs(attrs map[string]string) string {
	var markers, pairs []string
	for k, v := range attrs {
		if v == "" {
			markers = append(markers, k)
		} else {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(markers)
	sort.Strings(pairs)
	return strings.Join(append(markers, pairs...), ", ")
}

func writeIndent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("\t")
	}
}
