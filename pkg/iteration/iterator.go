package iteration

import (
	"context"

	"github.com/wehubfusion/foreach/pkg/message"
)

// Iterator drives a sequence one sub-message at a time
type Iterator struct {
	config Config
}

// NewIterator creates a new iterator with given config
func NewIterator(config Config) *Iterator {
	if config.CounterProperty == "" {
		config.CounterProperty = DefaultCounterProperty
	}
	return &Iterator{config: config}
}

// CounterProperty returns the name of the counter property
func (it *Iterator) CounterProperty() string {
	return it.config.CounterProperty
}

// Run sets the counter property on each sub-message and processes it.
// Processing is strictly sequential and fail-fast: the first error is
// returned unchanged and the remaining elements are never processed.
// The context is checked before each element.
// Returns the number of sub-messages processed successfully.
func (it *Iterator) Run(ctx context.Context, seq *Sequence, processFn ProcessFunc) (int, error) {
	processed := 0
	for counter := 1; ; counter++ {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		sub, ok := seq.Next()
		if !ok {
			return processed, nil
		}
		sub.SetProperty(it.config.CounterProperty, counter)
		if err := processFn(ctx, sub, counter); err != nil {
			return processed, err
		}
		processed++
	}
}

// Collect drains a sequence into a slice without processing it.
func Collect(seq *Sequence) []*message.Message {
	out := make([]*message.Message, 0, seq.Remaining())
	for {
		msg, ok := seq.Next()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}
