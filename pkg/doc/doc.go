// Package doc implements the weft document runtime: the in-memory model for
// data-plus-logic documents, the native CUE-based parser, and Starlark-backed
// function invocation.
//
// A document is a tree of scopes. Each scope holds ordered data fields,
// functions, and child scopes. Functions are string-valued fields tagged with
// a @fn(...) attribute; their bodies are Starlark scripts executed against
// the owning document. Data fields may carry a @unit(...) attribute, in which
// case unit expressions such as "6ft + 1in" are folded into the declared unit
// at parse time.
//
// A *Document is an exclusively-owned handle: it is created fresh for every
// driver invocation and must never be shared across concurrently executing
// invocations. All function execution happens on a single logical thread;
// asynchronous sub-work is delegated to the Host supplied at invoke time.
package doc
