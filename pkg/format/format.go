// Package format implements format identifier resolution and the codec
// plugin registry for the weft driver.
//
// A codec decodes raw bytes into a document handle and encodes document data
// back to bytes. Codecs are keyed by a format identifier; resolution from an
// input descriptor to an identifier is a pure function over the explicit
// override flag, the file extension table, and (for remote sources) the
// content-type hint, in that order.
package format

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/weftlang/weft/pkg/doc"
)

// ID is an enumerated format identifier selecting one codec plugin.
type ID string

// Built-in format identifiers.
const (
	Native   ID = "weft"
	Binary   ID = "bweft"
	JSON     ID = "json"
	YAML     ID = "yaml"
	TOML     ID = "toml"
	Text     ID = "text"
	Markdown ID = "md"
)

// ErrUnknownFormat is returned when no codec can be resolved for an input.
var ErrUnknownFormat = errors.New("unknown format")

// Codec is one format plugin: a decoder from bytes to a document handle and
// an encoder from document data back to bytes.
//
// Lossy conversions are enumerated per codec in its documentation; any data
// a codec cannot express must be dropped deterministically, never reordered.
type Codec interface {
	// ID returns the identifier this codec is registered under.
	ID() ID

	// Decode parses raw bytes into a fresh document handle.
	Decode(name string, data []byte) (*doc.Document, error)

	// Encode serializes document data (a *doc.Document or a plain value)
	// into this codec's wire form.
	Encode(v any) ([]byte, error)
}

// Registry maps format identifiers, file extensions, and content types to
// codecs. The zero value is not usable; use NewRegistry, which pre-registers
// every built-in codec.
type Registry struct {
	mu     sync.RWMutex
	codecs map[ID]Codec
	exts   map[string]ID
	ctypes map[string]ID
}

// NewRegistry returns a registry with all built-in codecs registered.
func NewRegistry() *Registry {
	r := &Registry{
		codecs: make(map[ID]Codec),
		exts:   make(map[string]ID),
		ctypes: make(map[string]ID),
	}

	r.Register(nativeCodec{}, []string{".weft"}, []string{"application/weft", "text/weft"})
	r.Register(binaryCodec{}, []string{".bweft"}, []string{"application/octet-stream", "application/bweft"})
	r.Register(jsonCodec{}, []string{".json"}, []string{"application/json"})
	r.Register(yamlCodec{}, []string{".yaml", ".yml"}, []string{"application/yaml", "application/x-yaml", "text/yaml"})
	r.Register(tomlCodec{}, []string{".toml"}, []string{"application/toml", "text/toml"})
	r.Register(textCodec{id: Text, field: "text"}, []string{".txt"}, []string{"text/plain"})
	r.Register(textCodec{id: Markdown, field: "md"}, []string{".md", ".markdown"}, []string{"text/markdown"})

	return r
}

// Register adds a codec and binds the given extensions and content types to
// it. Later registrations win, which lets callers override built-ins.
func (r *Registry) Register(c Codec, exts, ctypes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codecs[c.ID()] = c
	for _, ext := range exts {
		r.exts[strings.ToLower(ext)] = c.ID()
	}
	for _, ct := range ctypes {
		r.ctypes[strings.ToLower(ct)] = c.ID()
	}
}

// Codec returns the codec registered under the given identifier.
func (r *Registry) Codec(id ID) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[id]
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered for %q", ErrUnknownFormat, id)
	}
	return c, nil
}

// Resolve maps an input descriptor to a format identifier. Resolution order:
// the explicit override (a format id or extension), then the path's file
// extension, then the content-type hint. Resolve never touches the input
// bytes and has no side effects.
func (r *Registry) Resolve(override, path, contentType string) (ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if override != "" {
		o := strings.ToLower(override)
		if _, ok := r.codecs[ID(o)]; ok {
			return ID(o), nil
		}
		if id, ok := r.exts["."+strings.TrimPrefix(o, ".")]; ok {
			return id, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, override)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		if id, ok := r.exts[ext]; ok {
			return id, nil
		}
	}

	if contentType != "" {
		ct := strings.ToLower(contentType)
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		if id, ok := r.ctypes[ct]; ok {
			return id, nil
		}
		// Servers in the weft ecosystem reply with bare format ids.
		if _, ok := r.codecs[ID(ct)]; ok {
			return ID(ct), nil
		}
	}

	if path != "" {
		return "", fmt.Errorf("%w: no codec for %q", ErrUnknownFormat, path)
	}
	return "", ErrUnknownFormat
}

// ContentType returns the canonical content type to advertise for a format.
func (r *Registry) ContentType(id ID) string {
	switch id {
	case Native:
		return "application/weft"
	case Binary:
		return "application/bweft"
	case JSON:
		return "application/json"
	case YAML:
		return "application/yaml"
	case TOML:
		return "application/toml"
	case Markdown:
		return "text/markdown"
	case Text:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
