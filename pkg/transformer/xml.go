package transformer

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// XMLToDocument parses XML text into an *xmlquery.Node document.
func XMLToDocument() Transformer {
	return Func{
		From: XMLString,
		To:   XMLDocument,
		Fn: func(value interface{}) (interface{}, error) {
			text, ok := textOf(value)
			if !ok {
				return nil, fmt.Errorf("cannot parse %T as XML", value)
			}
			doc, err := xmlquery.Parse(strings.NewReader(text))
			if err != nil {
				return nil, fmt.Errorf("failed to parse XML: %w", err)
			}
			return doc, nil
		},
	}
}

// DocumentToXML renders an *xmlquery.Node back to XML text.
func DocumentToXML() Transformer {
	return Func{
		From: XMLDocument,
		To:   XMLString,
		Fn: func(value interface{}) (interface{}, error) {
			node, ok := value.(*xmlquery.Node)
			if !ok || node == nil {
				return nil, fmt.Errorf("cannot render %T as XML", value)
			}
			return node.OutputXML(true), nil
		},
	}
}
