package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/foreach/pkg/message"
)

// Middleware wraps a stage to add behaviour around Process
type Middleware func(Stage) Stage

// Wrap applies middlewares to stage. The first middleware is the outermost.
func Wrap(stage Stage, middlewares ...Middleware) Stage {
	for i := len(middlewares) - 1; i >= 0; i-- {
		stage = middlewares[i](stage)
	}
	return stage
}

// Recovery turns a panic inside the stage into an error
func Recovery() Middleware {
	return func(next Stage) Stage {
		return StageFunc(func(ctx context.Context, msg *message.Message) (out *message.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					out = nil
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next.Process(ctx, msg)
		})
	}
}

// Logging logs the outcome and duration of every Process call at debug level
func Logging(logger *zap.Logger) Middleware {
	return func(next Stage) Stage {
		return StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
			start := time.Now()
			out, err := next.Process(ctx, msg)
			fields := []zap.Field{
				zap.String("messageID", msg.ID),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Debug("Stage failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("Stage processed message", fields...)
			}
			return out, err
		})
	}
}

// Validation rejects nil messages and messages without an ID
func Validation() Middleware {
	return func(next Stage) Stage {
		return StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
			if msg == nil {
				return nil, errors.New("message is nil")
			}
			if msg.ID == "" {
				return nil, errors.New("message ID is empty")
			}
			return next.Process(ctx, msg)
		})
	}
}
