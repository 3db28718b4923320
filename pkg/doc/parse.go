package doc

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ParseError describes one parse or extraction failure with source position.
type ParseError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ParseError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ParseErrors aggregates every failure from one parse pass.
type ParseErrors []ParseError

// Error implements the error interface.
func (e ParseErrors) Error() string {
	if len(e) == 0 {
		return "no errors"
	}
	msgs := make([]string, len(e))
	for i, pe := range e {
		msgs[i] = pe.Error()
	}
	return strings.Join(msgs, "; ")
}

// ParseNative parses native weft source (CUE syntax with @fn and @unit
// attributes) into a fresh document handle.
func ParseNative(name string, data []byte) (*Document, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	if val.Kind() != cue.StructKind {
		return nil, ParseErrors{{File: name, Message: "document root must be a struct"}}
	}

	d := New(name)
	var errs ParseErrors
	buildScope(d.Root, val, "root", &errs)
	if len(errs) > 0 {
		return nil, errs
	}
	return d, nil
}

// buildScope extracts one CUE struct level into a document scope.
func buildScope(s *Scope, val cue.Value, path string, errs *ParseErrors) {
	iter, err := val.Fields()
	if err != nil {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("failed to iterate fields: %v", err)})
		return
	}

	for iter.Next() {
		name := strings.Trim(iter.Selector().String(), `"`)
		fv := iter.Value()
		fieldPath := path + "." + name

		// Function: string-valued field carrying a @fn attribute.
		if attr := fv.Attribute("fn"); attr.Err() == nil {
			body, err := fv.String()
			if err != nil {
				*errs = append(*errs, ParseError{Path: fieldPath, Message: "@fn field must be a string-valued Starlark body"})
				continue
			}
			fn := &Function{
				Name:  name,
				Path:  fieldPath,
				Attrs: make(map[string]string),
				Body:  body,
			}
			for i := 0; i < attr.NumArgs(); i++ {
				k, v := attr.Arg(i)
				fn.Attrs[k] = v
			}
			s.Funcs = append(s.Funcs, fn)
			continue
		}

		// Unit field: value folded into the declared unit at parse time.
		if attr := fv.Attribute("unit"); attr.Err() == nil {
			target, err := attr.String(0)
			if err != nil || target == "" {
				*errs = append(*errs, ParseError{Path: fieldPath, Message: "@unit requires a unit symbol argument"})
				continue
			}
			q, err := extractQuantity(fv, target)
			if err != nil {
				*errs = append(*errs, ParseError{Path: fieldPath, Message: err.Error()})
				continue
			}
			s.Fields = append(s.Fields, Field{Name: name, Value: q})
			continue
		}

		if fv.Kind() == cue.StructKind {
			child := &Scope{Name: name}
			buildScope(child, fv, fieldPath, errs)
			s.Children = append(s.Children, child)
			continue
		}

		v, err := extractValue(fv)
		if err != nil {
			*errs = append(*errs, ParseError{Path: fieldPath, Message: err.Error()})
			continue
		}
		s.Fields = append(s.Fields, Field{Name: name, Value: v})
	}
}

// extractQuantity folds a unit-attributed field into the target unit. The
// field value is either a unit expression string or a bare number already in
// the target unit.
func extractQuantity(val cue.Value, target string) (Quantity, error) {
	switch val.Kind() {
	case cue.StringKind:
		expr, _ := val.String()
		folded, err := EvalUnitExpr(expr, target)
		if err != nil {
			return Quantity{}, err
		}
		return Quantity{Value: folded, Unit: target}, nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		if !KnownUnit(target) {
			return Quantity{}, fmt.Errorf("unknown target unit %q", target)
		}
		f, err := val.Float64()
		if err != nil {
			return Quantity{}, err
		}
		return Quantity{Value: f, Unit: target}, nil
	default:
		return Quantity{}, fmt.Errorf("@unit field must be a number or unit expression string")
	}
}

// extractValue converts a leaf CUE value into the document value model.
func extractValue(val cue.Value) (any, error) {
	switch val.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return val.Bool()
	case cue.IntKind:
		return val.Int64()
	case cue.FloatKind, cue.NumberKind:
		return val.Float64()
	case cue.StringKind:
		return val.String()
	case cue.BytesKind:
		return val.Bytes()
	case cue.ListKind:
		iter, err := val.List()
		if err != nil {
			return nil, err
		}
		var list []any
		for iter.Next() {
			elem := iter.Value()
			var item any
			if elem.Kind() == cue.StructKind {
				var errs ParseErrors
				sub := &Scope{}
				buildScope(sub, elem, "", &errs)
				if len(errs) > 0 {
					return nil, errs
				}
				item = scopeValueMap(sub)
			} else {
				item, err = extractValue(elem)
				if err != nil {
					return nil, err
				}
			}
			list = append(list, item)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v", val.Kind())
	}
}

// scopeValueMap converts a scope into a value-model map, preserving
// quantities (unlike the codec-facing Data projection).
func scopeValueMap(s *Scope) map[string]any {
	m := make(map[string]any, len(s.Fields)+len(s.Children))
	for _, f := range s.Fields {
		m[f.Name] = f.Value
	}
	for _, c := range s.Children {
		m[c.Name] = scopeValueMap(c)
	}
	return m
}

// convertCUEErrors maps CUE error lists onto ParseErrors, as positions allow.
func convertCUEErrors(err error) ParseErrors {
	var out ParseErrors
	for _, e := range cueerrors.Errors(err) {
		pe := ParseError{Message: e.Error()}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			pe.File = pos[0].Filename()
			pe.Line = pos[0].Line()
			pe.Column = pos[0].Column()
			pe.Message = cueerrors.Details(e, nil)
		}
		out = append(out, pe)
	}
	if len(out) == 0 {
		out = append(out, ParseError{Message: err.Error()})
	}
	return out
}
