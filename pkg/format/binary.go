package format

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/weftlang/weft/pkg/doc"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(doc.Quantity{})
}

// binaryEnvelope is the on-wire form of the binary format. Exactly one of
// Doc and Value is set.
type binaryEnvelope struct {
	Doc   *doc.Document
	Value any
}

// binaryCodec is the binary format plugin. It is the only codec that round-
// trips the full document model, functions and quantities included. The
// encoding is Go gob; there is no binary codec in the surrounding ecosystem
// stack, and the format is consumed solely by weft peers, so the stdlib
// encoding is the deliberate choice here.
type binaryCodec struct{}

func (binaryCodec) ID() ID { return Binary }

func (binaryCodec) Decode(name string, data []byte) (*doc.Document, error) {
	var env binaryEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid binary document: %w", err)
	}
	if env.Doc == nil {
		return nil, fmt.Errorf("invalid binary document: missing document payload")
	}
	env.Doc.Name = name
	return env.Doc, nil
}

func (binaryCodec) Encode(v any) ([]byte, error) {
	env := binaryEnvelope{}
	if d, ok := v.(*doc.Document); ok {
		env.Doc = d
	} else {
		env.Value = v
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return nil, fmt.Errorf("failed to encode binary document: %w", err)
	}
	return buf.Bytes(), nil
}
