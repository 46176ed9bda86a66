package stages

import (
	"fmt"

	"github.com/wehubfusion/foreach/pkg/expression"
)

func compile(evaluators *expression.Registry, raw string) (expression.Expression, error) {
	if evaluators == nil {
		return expression.Expression{}, fmt.Errorf("expression %q needs an evaluator registry", raw)
	}
	expr, err := expression.Parse(raw)
	if err != nil {
		return expression.Expression{}, err
	}
	if err := evaluators.Compile(expr); err != nil {
		return expression.Expression{}, err
	}
	return expr, nil
}
