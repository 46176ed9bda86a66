package foreach

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/metrics"
	"github.com/wehubfusion/foreach/pkg/transformer"
)

// Option configures collaborators of a Stage.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	metrics      metrics.Collector
	evaluators   *expression.Registry
	transformers *transformer.Registry
}

func defaultOptions() options {
	return options{
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("foreach"),
		metrics: metrics.NoOpCollector{},
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.evaluators == nil {
		o.evaluators = expression.DefaultRegistry()
	}
	if o.transformers == nil {
		o.transformers = transformer.DefaultRegistry()
	}
	return o
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer. Defaults to the global "foreach" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) {
		if collector != nil {
			o.metrics = collector
		}
	}
}

// WithEvaluators sets the expression registry. Defaults to expression.DefaultRegistry().
func WithEvaluators(registry *expression.Registry) Option {
	return func(o *options) {
		o.evaluators = registry
	}
}

// WithTransformers sets the transformer registry. Defaults to transformer.DefaultRegistry().
func WithTransformers(registry *transformer.Registry) Option {
	return func(o *options) {
		o.transformers = registry
	}
}
