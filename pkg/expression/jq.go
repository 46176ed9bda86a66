package expression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/wehubfusion/foreach/pkg/message"
)

// JQEvaluator runs jq programs over decoded JSON payloads.
// The result is always a slice holding every value the program emitted,
// so ".items[]" yields one element per item and ".items" yields one
// element holding the whole array.
type JQEvaluator struct {
	codes sync.Map // body -> *gojq.Code
}

// NewJQEvaluator creates a jq evaluator.
func NewJQEvaluator() *JQEvaluator {
	return &JQEvaluator{}
}

// Compile implements Evaluator.
func (e *JQEvaluator) Compile(body string) error {
	_, err := e.code(body)
	return err
}

func (e *JQEvaluator) code(body string) (*gojq.Code, error) {
	if cached, ok := e.codes.Load(body); ok {
		return cached.(*gojq.Code), nil
	}
	query, err := gojq.Parse(body)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, err
	}
	e.codes.Store(body, code)
	return code, nil
}

// Evaluate implements Evaluator.
func (e *JQEvaluator) Evaluate(ctx context.Context, body string, msg *message.Message) (interface{}, error) {
	code, err := e.code(body)
	if err != nil {
		return nil, err
	}
	input, err := jqInput(msg.Payload)
	if err != nil {
		return nil, err
	}

	results := make([]interface{}, 0)
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// jqInput normalizes a payload into the value types gojq accepts.
func jqInput(payload interface{}) (interface{}, error) {
	switch v := payload.(type) {
	case nil, bool, int, float64, map[string]interface{}, []interface{}:
		return v, nil
	case string:
		return decodeJSON([]byte(v))
	case []byte:
		return decodeJSON(v)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON encodable: %w", err)
	}
	return decodeJSON(data)
}

func decodeJSON(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return v, nil
}
