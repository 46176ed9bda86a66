// Package transformer provides payload representation transformers and a
// registry that resolves them by source and target data type.
package transformer

import (
	"fmt"
	"sync"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
)

// DataType identifies a payload representation.
type DataType string

const (
	// XMLString is XML markup held as text
	XMLString DataType = "xml/string"
	// XMLDocument is a parsed XML tree (*xmlquery.Node)
	XMLDocument DataType = "xml/document"
	// JSONString is JSON held as text
	JSONString DataType = "json/string"
	// JSONDocument is decoded JSON (maps, slices and scalars)
	JSONDocument DataType = "json/document"
)

// Transformer converts a value from one representation to another.
type Transformer interface {
	// Source returns the representation accepted by Transform
	Source() DataType
	// Target returns the representation produced by Transform
	Target() DataType
	// Transform converts value. It fails when value cannot be converted.
	Transform(value interface{}) (interface{}, error)
}

// Func adapts a function to the Transformer interface.
type Func struct {
	From DataType
	To   DataType
	Fn   func(value interface{}) (interface{}, error)
}

// Source implements Transformer
func (f Func) Source() DataType { return f.From }

// Target implements Transformer
func (f Func) Target() DataType { return f.To }

// Transform implements Transformer
func (f Func) Transform(value interface{}) (interface{}, error) {
	return f.Fn(value)
}

type pair struct {
	source DataType
	target DataType
}

// Registry resolves transformers by data type pair.
// It is safe for concurrent use.
type Registry struct {
	transformers map[pair]Transformer
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transformers: make(map[pair]Transformer),
	}
}

// DefaultRegistry creates a registry with the XML and JSON text⇄tree pairs.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(XMLToDocument())
	r.Register(DocumentToXML())
	r.Register(JSONToDocument())
	r.Register(DocumentToJSON())
	return r
}

// Register adds a transformer. An existing transformer for the same pair is replaced.
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[pair{t.Source(), t.Target()}] = t
}

// Lookup returns the transformer converting source into target.
// Returns ErrTransformerNotFound if none is registered.
func (r *Registry) Lookup(source, target DataType) (Transformer, error) {
	r.mu.RLock()
	t, ok := r.transformers[pair{source, target}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ferrors.ErrTransformerNotFound, source, target)
	}
	return t, nil
}

// textOf returns the text held by a string or []byte value.
func textOf(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
