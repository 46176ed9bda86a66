// Package stages provides inner stages for foreach chains.
package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/message"
)

// LogConfig configures a Log stage
type LogConfig struct {
	// Message is an optional expression whose result is logged
	Message string `yaml:"message" json:"message,omitempty"`
	// Level is a zap level name; defaults to info
	Level string `yaml:"level" json:"level,omitempty"`
	// Properties lists message properties to include as fields
	Properties []string `yaml:"properties" json:"properties,omitempty"`
}

// Log logs each message it receives and passes it on unchanged.
type Log struct {
	name       string
	level      zapcore.Level
	expr       *expression.Expression
	properties []string
	evaluators *expression.Registry
	logger     *zap.Logger
}

// NewLog creates a Log stage.
func NewLog(name string, cfg LogConfig, evaluators *expression.Registry, logger *zap.Logger) (*Log, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Log{
		name:       name,
		level:      level,
		properties: cfg.Properties,
		evaluators: evaluators,
		logger:     logger.Named(name),
	}
	if cfg.Message != "" {
		expr, err := compile(evaluators, cfg.Message)
		if err != nil {
			return nil, err
		}
		l.expr = &expr
	}
	return l, nil
}

// Process implements chain.Stage.
func (l *Log) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	ce := l.logger.Check(l.level, "message")
	if ce == nil {
		return msg, nil
	}
	fields := []zap.Field{
		zap.String("id", msg.ID),
		zap.String("correlationID", msg.CorrelationID),
	}
	for _, p := range l.properties {
		if v, ok := msg.Property(p); ok {
			fields = append(fields, zap.Any(p, loggable(v)))
		}
	}
	if l.expr != nil {
		value, err := l.evaluators.Evaluate(ctx, *l.expr, msg)
		if err != nil {
			return nil, err
		}
		fields = append(fields, zap.Any("value", loggable(value)))
	}
	ce.Write(fields...)
	return msg, nil
}

// loggable replaces back-references with the referenced message ID.
func loggable(v interface{}) interface{} {
	if ref, ok := v.(*message.Message); ok {
		return "message:" + ref.ID
	}
	return v
}
