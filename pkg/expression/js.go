package expression

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/wehubfusion/foreach/pkg/message"
)

// JSEvaluator evaluates JavaScript expressions with goja.
// Programs are compiled once per body; each evaluation runs on a fresh VM.
//
// Scope:
//   - payload: the message payload
//   - vars: the message properties (writes are visible to the caller)
//   - message: the message itself, fields in lower camel case
type JSEvaluator struct {
	programs sync.Map // body -> *goja.Program
}

// NewJSEvaluator creates a JavaScript evaluator.
func NewJSEvaluator() *JSEvaluator {
	return &JSEvaluator{}
}

// Compile implements Evaluator.
func (e *JSEvaluator) Compile(body string) error {
	_, err := e.program(body)
	return err
}

func (e *JSEvaluator) program(body string) (*goja.Program, error) {
	if cached, ok := e.programs.Load(body); ok {
		return cached.(*goja.Program), nil
	}
	prg, err := goja.Compile("expression", body, false)
	if err != nil {
		return nil, err
	}
	e.programs.Store(body, prg)
	return prg, nil
}

// Evaluate implements Evaluator.
func (e *JSEvaluator) Evaluate(ctx context.Context, body string, msg *message.Message) (interface{}, error) {
	prg, err := e.program(body)
	if err != nil {
		return nil, err
	}

	vm := NewVM(msg)

	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				vm.Interrupt(ctx.Err())
			case <-stop:
			}
		}()
	}

	value, err := vm.RunProgram(prg)
	if err != nil {
		if interrupted, ok := err.(*goja.InterruptedError); ok {
			return nil, fmt.Errorf("script interrupted: %v", interrupted.Value())
		}
		return nil, err
	}
	return export(value), nil
}

// NewVM creates a goja runtime with the message scope installed.
func NewVM(msg *message.Message) *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	_ = vm.Set("payload", msg.Payload)
	_ = vm.Set("vars", msg.Properties)
	_ = vm.Set("message", msg)
	return vm
}

func export(value goja.Value) interface{} {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	return value.Export()
}
