package split

import (
	"context"

	"github.com/wehubfusion/foreach/pkg/chain"
	"github.com/wehubfusion/foreach/pkg/iteration"
	"github.com/wehubfusion/foreach/pkg/message"
)

// Splitter is an intercepting stage: it splits each message and routes
// every sub-message through its listener, then returns the original
// message.
type Splitter struct {
	strategy Strategy
	iterator *iteration.Iterator
	listener chain.Stage
}

var _ chain.Interceptor = (*Splitter)(nil)

// NewSplitter creates a splitter using strategy and iterator.
func NewSplitter(strategy Strategy, iterator *iteration.Iterator) *Splitter {
	return &Splitter{strategy: strategy, iterator: iterator}
}

// SetListener implements chain.Interceptor.
func (s *Splitter) SetListener(next chain.Stage) {
	s.listener = next
}

// Strategy returns the split strategy.
func (s *Splitter) Strategy() Strategy {
	return s.strategy
}

// Process implements chain.Stage. The first error from the strategy or the
// listener is returned unchanged.
func (s *Splitter) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	seq, err := s.strategy.Split(ctx, msg)
	if err != nil {
		return nil, err
	}
	_, err = s.iterator.Run(ctx, seq, func(ctx context.Context, sub *message.Message, _ int) error {
		if s.listener == nil {
			return nil
		}
		_, err := s.listener.Process(ctx, sub)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
