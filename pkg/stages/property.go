package stages

import (
	"context"
	"errors"

	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/message"
)

// SetPropertyConfig configures a SetProperty stage
type SetPropertyConfig struct {
	// Property is the property to set
	Property string `yaml:"property" json:"property"`
	// Value is the expression producing the value
	Value string `yaml:"value" json:"value"`
}

// SetProperty sets a message property to the result of an expression.
type SetProperty struct {
	property   string
	value      expression.Expression
	evaluators *expression.Registry
}

// NewSetProperty creates a SetProperty stage.
func NewSetProperty(cfg SetPropertyConfig, evaluators *expression.Registry) (*SetProperty, error) {
	if cfg.Property == "" {
		return nil, errors.New("property cannot be empty")
	}
	expr, err := compile(evaluators, cfg.Value)
	if err != nil {
		return nil, err
	}
	return &SetProperty{property: cfg.Property, value: expr, evaluators: evaluators}, nil
}

// Process implements chain.Stage.
func (s *SetProperty) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	value, err := s.evaluators.Evaluate(ctx, s.value, msg)
	if err != nil {
		return nil, err
	}
	msg.SetProperty(s.property, value)
	return msg, nil
}
