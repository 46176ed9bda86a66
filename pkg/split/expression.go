package split

import (
	"context"
	"fmt"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/iteration"
	"github.com/wehubfusion/foreach/pkg/message"
)

// expressionStrategy splits the value an expression selects from the message.
// A structural strategy evaluates the branch-producing form of the
// expression over a payload already in tree form.
type expressionStrategy struct {
	expr       expression.Expression
	evaluators *expression.Registry
	batch      int
	structural bool
}

func (s expressionStrategy) Kind() Kind {
	if s.structural {
		return KindStructural
	}
	return KindExpression
}

func (s expressionStrategy) Split(ctx context.Context, msg *message.Message) (*iteration.Sequence, error) {
	if s.structural && isText(msg.Payload) {
		return nil, fmt.Errorf("%w: %s needs a parsed payload, got %T", ferrors.ErrPayloadNotStructural, s.expr, msg.Payload)
	}
	value, err := s.evaluators.Evaluate(ctx, s.expr, msg)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return iteration.Empty(), nil
	}
	return splitValue(msg, value, s.batch)
}

// Expression returns the expression evaluated at split time.
func (s expressionStrategy) Expression() expression.Expression {
	return s.expr
}

func isText(payload interface{}) bool {
	switch payload.(type) {
	case string, []byte:
		return true
	}
	return false
}
