package expression

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wehubfusion/foreach/pkg/message"
)

// JSONEvaluator evaluates gjson paths against JSON payloads.
// Slash notation ("/items/0") is converted to dot notation.
type JSONEvaluator struct{}

// NewJSONEvaluator creates a JSON path evaluator.
func NewJSONEvaluator() *JSONEvaluator {
	return &JSONEvaluator{}
}

// Compile implements Evaluator.
func (e *JSONEvaluator) Compile(body string) error {
	if gjsonPath(body) == "" {
		return fmt.Errorf("empty path")
	}
	return nil
}

// Evaluate implements Evaluator. A missing path evaluates to nil.
func (e *JSONEvaluator) Evaluate(_ context.Context, body string, msg *message.Message) (interface{}, error) {
	raw, err := jsonText(msg.Payload)
	if err != nil {
		return nil, err
	}
	result := gjson.Get(raw, gjsonPath(body))
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

func gjsonPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", ".")
	}
	return path
}

func jsonText(payload interface{}) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("payload is not JSON encodable: %w", err)
	}
	return string(data), nil
}
