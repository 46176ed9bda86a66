package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/wehubfusion/foreach/pkg/message"
)

// DefaultCollectProperty is the root property Collect appends to
const DefaultCollectProperty = "collected"

// CollectConfig configures a Collect stage
type CollectConfig struct {
	// Root is the property holding the root message reference
	Root string `yaml:"root" json:"root,omitempty"`
	// Property is the list property on the root message
	Property string `yaml:"property" json:"property,omitempty"`
}

// Collect appends each payload to a list property of the root message.
type Collect struct {
	root     string
	property string
}

// NewCollect creates a Collect stage. root names the root reference
// property when cfg does not.
func NewCollect(cfg CollectConfig, root string) (*Collect, error) {
	if cfg.Root != "" {
		root = cfg.Root
	}
	if root == "" {
		return nil, errors.New("root property cannot be empty")
	}
	if cfg.Property == "" {
		cfg.Property = DefaultCollectProperty
	}
	return &Collect{root: root, property: cfg.Property}, nil
}

// Process implements chain.Stage.
func (c *Collect) Process(_ context.Context, msg *message.Message) (*message.Message, error) {
	root := msg.Reference(c.root)
	if root == nil {
		return nil, fmt.Errorf("property %q does not reference a message", c.root)
	}
	list, _ := root.Properties[c.property].([]interface{})
	collected := make([]interface{}, len(list), len(list)+1)
	copy(collected, list)
	root.SetProperty(c.property, append(collected, msg.Payload))
	return msg, nil
}
