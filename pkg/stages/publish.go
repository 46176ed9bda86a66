package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/wehubfusion/foreach/pkg/message"
)

// Publisher publishes raw data to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// PublishConfig configures a Publish stage
type PublishConfig struct {
	Subject string `yaml:"subject" json:"subject"`
}

// Publish publishes each message as JSON.
type Publish struct {
	subject   string
	publisher Publisher
}

// NewPublish creates a Publish stage.
func NewPublish(cfg PublishConfig, publisher Publisher) (*Publish, error) {
	if cfg.Subject == "" {
		return nil, errors.New("subject cannot be empty")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	return &Publish{subject: cfg.Subject, publisher: publisher}, nil
}

// Process implements chain.Stage.
func (p *Publish) Process(_ context.Context, msg *message.Message) (*message.Message, error) {
	data, err := msg.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := p.publisher.Publish(p.subject, data); err != nil {
		return nil, fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	return msg, nil
}
