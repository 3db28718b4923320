package doc

import (
	"fmt"
	"sort"
	"strings"
)

// Document is a loaded document handle. It owns the full scope tree for one
// driver invocation and is never shared between concurrent invocations.
type Document struct {
	// Name identifies the document source (file path, URI, or "inline").
	Name string `json:"name"`

	// Root is the top-level scope.
	Root *Scope `json:"root"`
}

// Scope is one level of the document tree: ordered data fields, functions
// declared at this level, and nested child scopes.
type Scope struct {
	// Name is the scope's field name; empty for the root scope.
	Name string `json:"name,omitempty"`

	// Fields are the data fields in declaration order.
	Fields []Field `json:"fields,omitempty"`

	// Funcs are the functions declared in this scope, in declaration order.
	Funcs []*Function `json:"funcs,omitempty"`

	// Children are the nested scopes in declaration order.
	Children []*Scope `json:"children,omitempty"`
}

// Field is a single data field. Value is one of nil, bool, int64, float64,
// string, []byte, []any, or Quantity.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Function is a callable declared in a document via a @fn(...) attribute.
type Function struct {
	// Name is the function's field name.
	Name string `json:"name"`

	// Path is the dotted scope path, e.g. "root.util.greet".
	Path string `json:"path"`

	// Attrs holds the function's attribute map as written in the @fn
	// arguments. Marker attributes map to the empty string.
	Attrs map[string]string `json:"attrs,omitempty"`

	// Body is the Starlark source of the function.
	Body string `json:"body"`
}

// Attr returns the value of a function attribute and whether it is present.
// Marker attributes are present with an empty value.
func (f *Function) Attr(name string) (string, bool) {
	v, ok := f.Attrs[name]
	return v, ok
}

// HasAttr reports whether the function carries the given attribute.
func (f *Function) HasAttr(name string) bool {
	_, ok := f.Attrs[name]
	return ok
}

// New returns an empty document with the given source name.
func New(name string) *Document {
	return &Document{Name: name, Root: &Scope{}}
}

// Functions returns the document's functions in deterministic declaration
// order. When nested is true, functions declared inside child scopes are
// included, depth-first, after the functions of their parent scope.
func (d *Document) Functions(nested bool) []*Function {
	var out []*Function
	collectFuncs(d.Root, nested, &out)
	return out
}

func collectFuncs(s *Scope, nested bool, out *[]*Function) {
	*out = append(*out, s.Funcs...)
	if !nested {
		return
	}
	for _, child := range s.Children {
		collectFuncs(child, true, out)
	}
}

// Lookup resolves a dotted path to a field value. The final path element must
// name a field; intermediate elements name scopes.
func (d *Document) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	s := d.Root
	for _, part := range parts[:len(parts)-1] {
		s = s.child(part)
		if s == nil {
			return nil, false
		}
	}
	return s.field(parts[len(parts)-1])
}

// Set writes a field value at a dotted path, creating intermediate scopes as
// needed. The caller must be the sole owner of the handle; Set is not safe
// for concurrent use.
func (d *Document) Set(path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty field path")
	}
	parts := strings.Split(path, ".")
	s := d.Root
	for _, part := range parts[:len(parts)-1] {
		child := s.child(part)
		if child == nil {
			child = &Scope{Name: part}
			s.Children = append(s.Children, child)
		}
		s = child
	}
	name := parts[len(parts)-1]
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = value
			return nil
		}
	}
	s.Fields = append(s.Fields, Field{Name: name, Value: value})
	return nil
}

// Data flattens the document into plain Go data suitable for format codecs:
// nested scopes become maps and quantities fold into their numeric magnitude.
// Functions are not part of the data projection.
func (d *Document) Data() map[string]any {
	return scopeData(d.Root)
}

func scopeData(s *Scope) map[string]any {
	m := make(map[string]any, len(s.Fields)+len(s.Children))
	for _, f := range s.Fields {
		m[f.Name] = flattenValue(f.Value)
	}
	for _, child := range s.Children {
		m[child.Name] = scopeData(child)
	}
	return m
}

// flattenValue folds runtime-only value kinds into codec-friendly ones.
func flattenValue(v any) any {
	switch val := v.(type) {
	case Quantity:
		return val.Value
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = flattenValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = flattenValue(item)
		}
		return out
	default:
		return v
	}
}

// FromData builds a document scope tree from plain decoded data. Used by
// data-only format codecs (JSON, YAML, TOML, ...) which cannot express
// functions or units.
func FromData(name string, data map[string]any) *Document {
	d := New(name)
	fillScope(d.Root, data)
	return d
}

func fillScope(s *Scope, data map[string]any) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := data[k]
		if m, ok := v.(map[string]any); ok {
			child := &Scope{Name: k}
			fillScope(child, m)
			s.Children = append(s.Children, child)
			continue
		}
		s.Fields = append(s.Fields, Field{Name: k, Value: v})
	}
}

func (s *Scope) child(name string) *Scope {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *Scope) field(name string) (any, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}
