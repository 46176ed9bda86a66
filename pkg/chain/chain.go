// Package chain defines the stage contract and assembles ordered lists of
// stages into chains.
package chain

import (
	"context"
	"fmt"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/message"
)

// Stage processes one message and returns the resulting message.
// Returning a nil message stops the chain without error.
type Stage interface {
	Process(ctx context.Context, msg *message.Message) (*message.Message, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, msg *message.Message) (*message.Message, error)

// Process implements Stage.
func (f StageFunc) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	return f(ctx, msg)
}

// Interceptor is a stage that takes over the invocation of the stages
// following it. The chain builder registers those stages as its listener.
type Interceptor interface {
	Stage
	SetListener(next Stage)
}

// Chain runs stages in order, each receiving the previous stage's output.
type Chain struct {
	name   string
	stages []Stage
}

// Process implements Stage. Errors are returned unchanged.
func (c *Chain) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	current := msg
	for _, stage := range c.stages {
		out, err := stage.Process(ctx, current)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		current = out
	}
	return current, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return c.name
}

// Len returns the number of stages run directly by this chain. Stages
// owned by an interceptor are not counted.
func (c *Chain) Len() int {
	return len(c.stages)
}

// Builder assembles chains.
type Builder struct {
	name   string
	stages []Stage
}

// NewBuilder creates a chain builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Named sets the chain name used in errors.
func (b *Builder) Named(name string) *Builder {
	b.name = name
	return b
}

// Chain appends stages.
func (b *Builder) Chain(stages ...Stage) *Builder {
	b.stages = append(b.stages, stages...)
	return b
}

// Build assembles the chain. The first Interceptor found becomes the last
// stage of the chain and receives the chain of the stages after it as its
// listener, recursively.
func (b *Builder) Build() (*Chain, error) {
	return build(b.name, b.stages)
}

func build(name string, stages []Stage) (*Chain, error) {
	c := &Chain{name: name}
	for i, stage := range stages {
		if stage == nil {
			return nil, fmt.Errorf("%w: %s stage %d is nil", ferrors.ErrChainBuild, chainLabel(name), i)
		}
		c.stages = append(c.stages, stage)

		interceptor, ok := stage.(Interceptor)
		if !ok {
			continue
		}
		rest, err := build(name, stages[i+1:])
		if err != nil {
			return nil, err
		}
		interceptor.SetListener(rest)
		break
	}
	return c, nil
}

func chainLabel(name string) string {
	if name == "" {
		return "chain"
	}
	return "chain " + name
}
