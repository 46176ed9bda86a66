package iteration

import (
	"context"

	"github.com/wehubfusion/foreach/pkg/message"
)

// DefaultCounterProperty is the property holding the 1-based position of a
// sub-message within its sequence.
const DefaultCounterProperty = "counter"

// Config holds configuration for sequence iteration
type Config struct {
	// CounterProperty names the counter property ("" = DefaultCounterProperty)
	CounterProperty string
}

// ProcessFunc is the function called for each sub-message.
// counter is the 1-based position of sub within the sequence.
type ProcessFunc func(ctx context.Context, sub *message.Message, counter int) error
