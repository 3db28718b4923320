package engine

import (
	"github.com/weftlang/weft/pkg/doc"
)

// DefaultMarker is the attribute marker selecting entry-point candidates
// when the caller does not name one.
const DefaultMarker = "main"

// Discover returns the document's functions carrying the marker attribute,
// in declaration order. When nested is true the search descends into child
// scopes, depth-first.
func Discover(d *doc.Document, marker string, nested bool) []*doc.Function {
	if marker == "" {
		marker = DefaultMarker
	}
	var out []*doc.Function
	for _, fn := range d.Functions(nested) {
		if fn.HasAttr(marker) {
			out = append(out, fn)
		}
	}
	return out
}

// SelectEntry picks the single entry point for an invocation. A non-empty
// override bypasses marker discovery and selects a function by path or bare
// name. Without an override, exactly one marked candidate must exist: zero
// candidates and multiple candidates are both distinct failures, and the
// ambiguity diagnostic names every candidate.
func SelectEntry(d *doc.Document, marker, override string, nested bool) (*doc.Function, error) {
	if override != "" {
		for _, fn := range d.Functions(nested) {
			if fn.Path == override || fn.Name == override {
				return fn, nil
			}
		}
		return nil, &DriverError{
			Code:    CodeNoEntryPoint,
			Stage:   StageDiscover,
			Message: "document declares no function named " + override,
			Details: map[string]any{"entrypoint": override},
		}
	}

	candidates := Discover(d, marker, nested)
	switch len(candidates) {
	case 0:
		if marker == "" {
			marker = DefaultMarker
		}
		return nil, NewNoEntryPointError(marker)
	case 1:
		return candidates[0], nil
	}

	paths := make([]string, len(candidates))
	for i, fn := range candidates {
		paths[i] = fn.Path
	}
	if marker == "" {
		marker = DefaultMarker
	}
	return nil, NewAmbiguousEntryPointError(marker, paths)
}
