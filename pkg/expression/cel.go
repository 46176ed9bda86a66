package expression

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/wehubfusion/foreach/pkg/message"
)

// CELEvaluator evaluates Common Expression Language expressions with
// payload (dyn) and vars (map(string, dyn)) in scope.
type CELEvaluator struct {
	env      *cel.Env
	envErr   error
	envOnce  sync.Once
	programs sync.Map // body -> cel.Program
}

// NewCELEvaluator creates a CEL evaluator. The environment is built on first use.
func NewCELEvaluator() *CELEvaluator {
	return &CELEvaluator{}
}

func (e *CELEvaluator) environment() (*cel.Env, error) {
	e.envOnce.Do(func() {
		e.env, e.envErr = cel.NewEnv(
			cel.Variable("payload", cel.DynType),
			cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return e.env, e.envErr
}

// Compile implements Evaluator.
func (e *CELEvaluator) Compile(body string) error {
	_, err := e.program(body)
	return err
}

func (e *CELEvaluator) program(body string) (cel.Program, error) {
	if cached, ok := e.programs.Load(body); ok {
		return cached.(cel.Program), nil
	}
	env, err := e.environment()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(body)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program construction: %w", err)
	}
	e.programs.Store(body, prg)
	return prg, nil
}

// Evaluate implements Evaluator.
func (e *CELEvaluator) Evaluate(ctx context.Context, body string, msg *message.Message) (interface{}, error) {
	prg, err := e.program(body)
	if err != nil {
		return nil, err
	}
	vars := msg.Properties
	if vars == nil {
		vars = map[string]interface{}{}
	}
	out, _, err := prg.ContextEval(ctx, map[string]interface{}{
		"payload": msg.Payload,
		"vars":    vars,
	})
	if err != nil {
		return nil, err
	}
	return celToNative(out), nil
}

// celToNative converts CEL values into plain Go maps, slices and scalars.
func celToNative(val ref.Val) interface{} {
	switch v := val.(type) {
	case types.Null:
		return nil
	case traits.Lister:
		items := make([]interface{}, 0)
		for it := v.Iterator(); it.HasNext() == types.True; {
			items = append(items, celToNative(it.Next()))
		}
		return items
	case traits.Mapper:
		out := make(map[string]interface{})
		for it := v.Iterator(); it.HasNext() == types.True; {
			key := it.Next()
			out[fmt.Sprint(key.Value())] = celToNative(v.Get(key))
		}
		return out
	}
	return val.Value()
}
