package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/message"
)

// SetJSONConfig configures a SetJSON stage
type SetJSONConfig struct {
	// Path is an sjson path, e.g. "order.status" or "lines.-1"
	Path string `yaml:"path" json:"path"`
	// Value is the expression producing the value
	Value string `yaml:"value" json:"value"`
}

// SetJSON sets a value at a path of a JSON payload. Textual payloads keep
// their Go type; decoded payloads are re-decoded after the edit.
type SetJSON struct {
	path       string
	value      expression.Expression
	evaluators *expression.Registry
}

// NewSetJSON creates a SetJSON stage.
func NewSetJSON(cfg SetJSONConfig, evaluators *expression.Registry) (*SetJSON, error) {
	if cfg.Path == "" {
		return nil, errors.New("path cannot be empty")
	}
	expr, err := compile(evaluators, cfg.Value)
	if err != nil {
		return nil, err
	}
	return &SetJSON{path: cfg.Path, value: expr, evaluators: evaluators}, nil
}

// Process implements chain.Stage.
func (s *SetJSON) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	value, err := s.evaluators.Evaluate(ctx, s.value, msg)
	if err != nil {
		return nil, err
	}

	switch payload := msg.Payload.(type) {
	case string:
		out, err := sjson.Set(payload, s.path, value)
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", s.path, err)
		}
		msg.SetPayload(out)
	case []byte:
		out, err := sjson.SetBytes(payload, s.path, value)
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", s.path, err)
		}
		msg.SetPayload(out)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("payload is not JSON encodable: %w", err)
		}
		if data, err = sjson.SetBytes(data, s.path, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", s.path, err)
		}
		var decoded interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, err
		}
		msg.SetPayload(decoded)
	}
	return msg, nil
}
