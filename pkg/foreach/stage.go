// Package foreach provides a pipeline stage that splits a message into
// sub-messages and routes each one through an inner chain of stages.
package foreach

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/foreach/pkg/chain"
	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/iteration"
	"github.com/wehubfusion/foreach/pkg/message"
	"github.com/wehubfusion/foreach/pkg/metrics"
	"github.com/wehubfusion/foreach/pkg/split"
)

// Stage splits each message it processes, runs its inner stages once per
// sub-message and forwards the original message.
//
// A Stage is immutable once created and safe for concurrent use on
// independent messages. The next stage must be registered before the
// first call to Process.
type Stage struct {
	name            string
	rootProperty    string
	counterProperty string
	kind            split.Kind
	iteration       *chain.Chain
	codec           *codec
	next            chain.Stage
	started         atomic.Bool

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics metrics.Collector
}

var _ chain.Interceptor = (*Stage)(nil)

// New validates cfg and builds a ready to run stage. Any configuration
// problem is reported here as a configuration error.
func New(cfg Config, opts ...Option) (*Stage, error) {
	o := buildOptions(opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.RootMessageVariableName == "" {
		cfg.RootMessageVariableName = DefaultRootMessageVariableName
	}
	if cfg.CounterVariableName == "" {
		cfg.CounterVariableName = DefaultCounterVariableName
	}

	kind, _ := split.ParseKind(cfg.Split)
	strategy, err := split.New(split.Options{
		Expression: cfg.Collection,
		BatchSize:  cfg.BatchSize,
		Kind:       kind,
		Evaluators: o.evaluators,
	})
	if err != nil {
		return nil, err
	}

	var payloadCodec *codec
	if strategy.Kind() == split.KindStructural {
		expr, err := expression.Parse(cfg.Collection)
		if err != nil {
			return nil, ferrors.Configuration("invalid collection expression", err)
		}
		structure, _ := o.evaluators.Structure(expr.Language)
		if payloadCodec, err = resolveCodec(structure, o.transformers); err != nil {
			return nil, err
		}
	}

	s := &Stage{
		name:            cfg.Name,
		rootProperty:    cfg.RootMessageVariableName,
		counterProperty: cfg.CounterVariableName,
		kind:            strategy.Kind(),
		codec:           payloadCodec,
		logger:          o.logger.Named(cfg.Name),
		tracer:          o.tracer,
		metrics:         o.metrics,
	}

	splitter := split.NewSplitter(strategy, iteration.NewIterator(iteration.Config{
		CounterProperty: cfg.CounterVariableName,
	}))
	s.iteration, err = chain.NewBuilder().
		Named(cfg.Name).
		Chain(splitter, chain.StageFunc(s.observe)).
		Chain(cfg.Stages...).
		Build()
	if err != nil {
		return nil, ferrors.Configuration("failed to assemble iteration chain", err)
	}

	s.logger.Debug("Foreach stage initialised",
		zap.String("split", string(s.kind)),
		zap.String("collection", cfg.Collection),
		zap.Int("batchSize", cfg.BatchSize),
		zap.Int("stages", len(cfg.Stages)),
		zap.Bool("codec", payloadCodec != nil))

	return s, nil
}

// Name returns the stage name.
func (s *Stage) Name() string {
	return s.name
}

// Kind returns the selected split kind.
func (s *Stage) Kind() split.Kind {
	return s.kind
}

// SetListener registers the stage the original message is forwarded to.
// Calls after the first Process are ignored.
func (s *Stage) SetListener(next chain.Stage) {
	if s.started.Load() {
		s.logger.Warn("Ignoring listener registered after first use")
		return
	}
	s.next = next
}

// Process runs the iteration for msg and forwards it. Errors from the
// split or from inner stages are returned unchanged; encode and decode
// failures are transform errors.
func (s *Stage) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	s.started.Store(true)

	ctx, span := s.tracer.Start(ctx, "foreach.process",
		trace.WithAttributes(
			attribute.String("foreach.name", s.name),
			attribute.String("foreach.split", string(s.kind)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.correlation_id", msg.CorrelationID),
		))
	defer span.End()

	start := time.Now()

	encoded, asBytes := false, false
	if s.codec.needsEncode(msg) {
		var err error
		if asBytes, err = s.codec.encode(msg); err != nil {
			return nil, s.fail(span, msg, "Failed to encode payload", err)
		}
		encoded = true
	}

	msg.SetProperty(s.rootProperty, msg)

	if _, err := s.iteration.Process(ctx, msg); err != nil {
		return nil, s.fail(span, msg, "Iteration failed", err)
	}

	if encoded {
		if err := s.codec.decode(msg, asBytes); err != nil {
			return nil, s.fail(span, msg, "Failed to decode payload", err)
		}
	}

	elapsed := time.Since(start)
	s.metrics.RecordProcessed(elapsed.Nanoseconds())
	span.SetAttributes(attribute.Int64("processing.duration_ms", elapsed.Milliseconds()))
	span.SetStatus(codes.Ok, "")
	s.logger.Debug("Iteration completed",
		zap.String("messageID", msg.ID),
		zap.Duration("processingTime", elapsed))

	if s.next != nil {
		return s.next.Process(ctx, msg)
	}
	return msg, nil
}

// observe runs before the inner stages for every sub-message.
func (s *Stage) observe(ctx context.Context, sub *message.Message) (*message.Message, error) {
	s.metrics.RecordIteration()
	counter, _ := sub.Property(s.counterProperty)
	if c, ok := counter.(int); ok {
		trace.SpanFromContext(ctx).AddEvent("iteration", trace.WithAttributes(attribute.Int("foreach.counter", c)))
	}
	return sub, nil
}

func (s *Stage) fail(span trace.Span, msg *message.Message, what string, err error) error {
	s.metrics.RecordError()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error(what,
		zap.String("messageID", msg.ID),
		zap.Error(err))
	return err
}
