// Package runner hosts a stage behind a NATS queue subscription. Each
// inbound message is decoded, processed on a worker pool with a timeout,
// and its result published back.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internaltracing "github.com/wehubfusion/foreach/internal/tracing"
	"github.com/wehubfusion/foreach/pkg/chain"
	"github.com/wehubfusion/foreach/pkg/concurrency"
	"github.com/wehubfusion/foreach/pkg/message"
)

// Suffixes appended to the inbound subject for results and errors of
// messages without a reply subject
const (
	ResultSuffix = ".result"
	ErrorSuffix  = ".error"
)

// ErrorHeader is set on error replies
const ErrorHeader = "Foreach-Error"

// Config configures a Runner
type Config struct {
	// Subject to subscribe to
	Subject string
	// Queue group shared by all runner instances
	Queue string
	// NumWorkers is the number of concurrent workers
	NumWorkers int
	// BufferSize is the inbound channel size
	BufferSize int
	// ProcessTimeout bounds the processing of one message
	ProcessTimeout time.Duration
	// PublishFailureThreshold consecutive publish failures open the
	// publish circuit; replies are dropped while it is open
	PublishFailureThreshold int
	// PublishResetTimeout is how long the publish circuit stays open
	PublishResetTimeout time.Duration
}

// DefaultConfig returns a configuration for subject with the worker count
// sized by concurrency.LoadConfig.
func DefaultConfig(subject string) Config {
	return Config{
		Subject:                 subject,
		Queue:                   "foreach",
		NumWorkers:              concurrency.LoadConfig().RunnerWorkers,
		BufferSize:              64,
		ProcessTimeout:          30 * time.Second,
		PublishFailureThreshold: 10,
		PublishResetTimeout:     30 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if c.NumWorkers <= 0 {
		return errors.New("numWorkers must be greater than 0")
	}
	if c.BufferSize < 0 {
		return errors.New("bufferSize cannot be negative")
	}
	if c.ProcessTimeout <= 0 {
		return errors.New("processTimeout must be greater than 0")
	}
	if c.PublishFailureThreshold <= 0 {
		return errors.New("publishFailureThreshold must be greater than 0")
	}
	if c.PublishResetTimeout <= 0 {
		return errors.New("publishResetTimeout must be greater than 0")
	}
	return nil
}

// ErrorReport is published when processing fails
type ErrorReport struct {
	ID            string `json:"id,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Error         string `json:"error"`
}

// Runner subscribes to a subject and runs every message through a stage.
type Runner struct {
	transport       Transport
	stage           chain.Stage
	config          Config
	logger          *zap.Logger
	tracer          trace.Tracer
	propagator      propagation.TextMapPropagator
	breaker         *concurrency.Breaker
	tracingShutdown func(context.Context) error
}

// NewRunner creates a runner. tracingConfig is optional; when set, tracing
// is set up here and torn down by Close.
func NewRunner(transport Transport, stage chain.Stage, config Config, logger *zap.Logger, tracingConfig *TracingConfig) (*Runner, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if stage == nil {
		return nil, errors.New("stage cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	runner := &Runner{
		transport:  transport,
		stage:      chain.Wrap(stage, chain.Recovery(), chain.Logging(logger)),
		config:     config,
		logger:     logger,
		tracer:     otel.Tracer("foreach/runner"),
		propagator: propagation.TraceContext{},
		breaker:    concurrency.NewBreaker(config.PublishFailureThreshold, config.PublishResetTimeout),
	}

	if tracingConfig != nil {
		shutdown, err := internaltracing.Setup(context.Background(), tracingConfig.toInternalConfig(), logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			runner.tracingShutdown = shutdown
			runner.tracer = otel.Tracer("foreach/runner")
		}
	}

	return runner, nil
}

// Close shuts down tracing if the runner set it up.
func (r *Runner) Close() error {
	return internaltracing.Shutdown(r.tracingShutdown, r.logger)
}

// Run subscribes and processes messages until ctx is cancelled. It waits
// for in-flight messages before returning ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	inbound := make(chan *nats.Msg, r.config.BufferSize)
	unsubscribe, err := r.transport.Subscribe(r.config.Subject, r.config.Queue, inbound)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.config.Subject, err)
	}
	r.logger.Info("Runner subscribed",
		zap.String("subject", r.config.Subject),
		zap.String("queue", r.config.Queue),
		zap.Int("workers", r.config.NumWorkers))

	var wg sync.WaitGroup
	for i := 0; i < r.config.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, inbound)
		}(i)
	}

	<-ctx.Done()
	r.logger.Info("Shutting down runner...")
	if err := unsubscribe(); err != nil {
		r.logger.Warn("Error unsubscribing", zap.Error(err))
	}
	wg.Wait()
	r.logger.Info("Runner stopped")
	return ctx.Err()
}

func (r *Runner) worker(ctx context.Context, workerID int, inbound <-chan *nats.Msg) {
	r.logger.Debug("Worker started", zap.Int("workerID", workerID))
	defer r.logger.Debug("Worker stopped", zap.Int("workerID", workerID))

	for {
		select {
		case natsMsg := <-inbound:
			r.processMessage(ctx, workerID, natsMsg)
		case <-ctx.Done():
			return
		}
	}
}

// processMessage decodes, processes and answers one inbound message.
func (r *Runner) processMessage(ctx context.Context, workerID int, natsMsg *nats.Msg) {
	ctx = r.propagator.Extract(ctx, propagation.HeaderCarrier(natsMsg.Header))
	ctx, span := r.tracer.Start(ctx, "runner.processMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("messaging.destination", natsMsg.Subject),
		))
	defer span.End()

	msg, err := message.FromNATSMsg(natsMsg)
	if err != nil {
		r.logger.Error("Failed to decode message",
			zap.Int("workerID", workerID),
			zap.String("subject", natsMsg.Subject),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.reportError(ctx, natsMsg, nil, fmt.Errorf("invalid message: %w", err))
		return
	}
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.correlation_id", msg.CorrelationID))

	processCtx, cancel := context.WithTimeout(ctx, r.config.ProcessTimeout)
	defer cancel()

	start := time.Now()
	result, err := r.stage.Process(processCtx, msg)
	processingTime := time.Since(start)
	span.SetAttributes(attribute.Int64("processing.duration_ms", processingTime.Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("Error processing message",
			zap.Int("workerID", workerID),
			zap.String("messageID", msg.ID),
			zap.Duration("processingTime", processingTime),
			zap.Error(err))
		r.reportError(ctx, natsMsg, msg, err)
		return
	}

	span.SetStatus(codes.Ok, "Message processed successfully")
	r.logger.Info("Successfully processed message",
		zap.Int("workerID", workerID),
		zap.String("messageID", msg.ID),
		zap.Duration("processingTime", processingTime))

	if result == nil {
		r.logger.Debug("Stage produced no result", zap.String("messageID", msg.ID))
		return
	}
	data, err := result.ToBytes()
	if err != nil {
		r.logger.Error("Failed to encode result", zap.String("messageID", msg.ID), zap.Error(err))
		r.reportError(ctx, natsMsg, msg, fmt.Errorf("failed to encode result: %w", err))
		return
	}
	r.publish(ctx, r.replySubject(natsMsg, ResultSuffix), data, nil)
}

func (r *Runner) reportError(ctx context.Context, natsMsg *nats.Msg, msg *message.Message, cause error) {
	report := ErrorReport{Error: cause.Error()}
	if msg != nil {
		report.ID = msg.ID
		report.CorrelationID = msg.CorrelationID
	}
	data, err := json.Marshal(report)
	if err != nil {
		r.logger.Error("Failed to encode error report", zap.Error(err))
		return
	}
	r.publish(ctx, r.replySubject(natsMsg, ErrorSuffix), data, nats.Header{ErrorHeader: []string{cause.Error()}})
}

func (r *Runner) publish(ctx context.Context, subject string, data []byte, header nats.Header) {
	out := nats.NewMsg(subject)
	out.Data = data
	for k, v := range header {
		out.Header[k] = v
	}
	r.propagator.Inject(ctx, propagation.HeaderCarrier(out.Header))

	if err := r.breaker.Allow(); err != nil {
		r.logger.Warn("Dropping reply", zap.String("subject", subject), zap.Error(err))
		return
	}
	err := r.transport.PublishMsg(out)
	r.breaker.Record(err)
	if err != nil {
		r.logger.Error("Failed to publish", zap.String("subject", subject), zap.Error(err))
	}
}

// replySubject answers on the reply subject when the sender asked for one.
func (r *Runner) replySubject(natsMsg *nats.Msg, suffix string) string {
	if natsMsg.Reply != "" {
		return natsMsg.Reply
	}
	return natsMsg.Subject + suffix
}
