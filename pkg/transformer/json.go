package transformer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONToDocument decodes JSON text into maps, slices and scalars.
// Numbers decode as json.Number so they encode back unchanged.
func JSONToDocument() Transformer {
	return Func{
		From: JSONString,
		To:   JSONDocument,
		Fn: func(value interface{}) (interface{}, error) {
			text, ok := textOf(value)
			if !ok {
				return nil, fmt.Errorf("cannot decode %T as JSON", value)
			}
			dec := json.NewDecoder(strings.NewReader(text))
			dec.UseNumber()
			var doc interface{}
			if err := dec.Decode(&doc); err != nil {
				return nil, fmt.Errorf("failed to decode JSON: %w", err)
			}
			if dec.More() {
				return nil, fmt.Errorf("failed to decode JSON: trailing data after document")
			}
			return doc, nil
		},
	}
}

// DocumentToJSON encodes a decoded JSON document back to text.
func DocumentToJSON() Transformer {
	return Func{
		From: JSONDocument,
		To:   JSONString,
		Fn: func(value interface{}) (interface{}, error) {
			data, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode JSON: %w", err)
			}
			return string(data), nil
		},
	}
}
