package expression

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/message"
)

// XPathEvaluator evaluates XPath expressions over XML payloads.
//
// In scalar mode node-set results collapse to text: nil for no node, the
// node's inner text for one node, a slice of texts otherwise. Text payloads
// are parsed on the fly.
//
// In branch mode the result is a slice of *xmlquery.Node belonging to the
// payload document, and the payload must already be an *xmlquery.Node.
type XPathEvaluator struct {
	branch bool
	exprs  sync.Map // body -> *xpath.Expr
}

// NewXPathEvaluator creates an XPath evaluator.
func NewXPathEvaluator(branch bool) *XPathEvaluator {
	return &XPathEvaluator{branch: branch}
}

// Compile implements Evaluator.
func (e *XPathEvaluator) Compile(body string) error {
	_, err := e.compiled(body)
	return err
}

func (e *XPathEvaluator) compiled(body string) (*xpath.Expr, error) {
	if cached, ok := e.exprs.Load(body); ok {
		return cached.(*xpath.Expr), nil
	}
	expr, err := xpath.Compile(body)
	if err != nil {
		return nil, err
	}
	e.exprs.Store(body, expr)
	return expr, nil
}

// Evaluate implements Evaluator.
func (e *XPathEvaluator) Evaluate(_ context.Context, body string, msg *message.Message) (interface{}, error) {
	var expr *xpath.Expr
	var err error
	if e.branch {
		expr, err = e.compiled(body)
	} else {
		// Expr.Evaluate mutates the compiled query; scalar mode compiles per call.
		expr, err = xpath.Compile(body)
	}
	if err != nil {
		return nil, err
	}

	doc, err := e.document(msg.Payload)
	if err != nil {
		return nil, err
	}
	nav := xmlquery.CreateXPathNavigator(doc)

	if e.branch {
		nodes := make([]interface{}, 0)
		iter := expr.Select(nav)
		for iter.MoveNext() {
			if current, ok := iter.Current().(*xmlquery.NodeNavigator); ok {
				nodes = append(nodes, current.Current())
			}
		}
		return nodes, nil
	}

	switch result := expr.Evaluate(nav).(type) {
	case *xpath.NodeIterator:
		var texts []interface{}
		for result.MoveNext() {
			texts = append(texts, result.Current().Value())
		}
		switch len(texts) {
		case 0:
			return nil, nil
		case 1:
			return texts[0], nil
		}
		return texts, nil
	default:
		return result, nil
	}
}

func (e *XPathEvaluator) document(payload interface{}) (*xmlquery.Node, error) {
	switch v := payload.(type) {
	case *xmlquery.Node:
		if v == nil {
			break
		}
		return v, nil
	case string:
		if !e.branch {
			return parseXML(v)
		}
	case []byte:
		if !e.branch {
			return parseXML(string(v))
		}
	}
	return nil, fmt.Errorf("%w: got %T", ferrors.ErrPayloadNotStructural, payload)
}

func parseXML(text string) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML payload: %w", err)
	}
	return doc, nil
}
