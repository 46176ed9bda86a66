package foreach

import (
	"fmt"
	"os"
	"strconv"

	"github.com/wehubfusion/foreach/pkg/chain"
	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/iteration"
	"github.com/wehubfusion/foreach/pkg/split"
)

const (
	// DefaultName names stages that are not given a name
	DefaultName = "foreach"

	// DefaultRootMessageVariableName is the property referencing the original message
	DefaultRootMessageVariableName = "rootMessage"

	// DefaultCounterVariableName is the property holding the 1-based counter
	DefaultCounterVariableName = iteration.DefaultCounterProperty

	// DefaultBatchSize is the number of elements per sub-message
	DefaultBatchSize = 1

	// EnvBatchSize overrides the batch size when set
	EnvBatchSize = "FOREACH_BATCH_SIZE"
)

// Config describes a foreach stage. It is consumed once by New.
type Config struct {
	// Name identifies the stage in logs, traces and metrics
	Name string `yaml:"name" json:"name,omitempty"`

	// Collection is an optional expression selecting what to split.
	// Empty splits the payload itself.
	Collection string `yaml:"collection" json:"collection,omitempty"`

	// BatchSize is the number of elements per sub-message. Must be positive.
	BatchSize int `yaml:"batchSize" json:"batchSize"`

	// RootMessageVariableName names the root reference property
	RootMessageVariableName string `yaml:"rootMessageVariableName" json:"rootMessageVariableName,omitempty"`

	// CounterVariableName names the counter property
	CounterVariableName string `yaml:"counterVariableName" json:"counterVariableName,omitempty"`

	// Split forces a split kind ("collection", "grouped", "map", "expression", "structural")
	Split string `yaml:"split" json:"split,omitempty"`

	// Stages are run in order for every sub-message
	Stages []chain.Stage `yaml:"-" json:"-"`
}

// DefaultConfig returns a configuration splitting the payload one element
// at a time.
func DefaultConfig() Config {
	return Config{
		Name:                    DefaultName,
		BatchSize:               DefaultBatchSize,
		RootMessageVariableName: DefaultRootMessageVariableName,
		CounterVariableName:     DefaultCounterVariableName,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return ferrors.Configuration(fmt.Sprintf("invalid batch size %d", c.BatchSize), ferrors.ErrInvalidBatchSize)
	}
	if _, err := split.ParseKind(c.Split); err != nil {
		return ferrors.Configuration("invalid split", err)
	}
	root, counter := c.RootMessageVariableName, c.CounterVariableName
	if root == "" {
		root = DefaultRootMessageVariableName
	}
	if counter == "" {
		counter = DefaultCounterVariableName
	}
	if root == counter {
		return ferrors.Configuration("root message and counter variables must differ", nil)
	}
	return nil
}

// ApplyEnv returns the configuration with environment overrides applied.
func (c Config) ApplyEnv() (Config, error) {
	if v, ok := os.LookupEnv(EnvBatchSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, ferrors.Configuration(fmt.Sprintf("invalid %s %q", EnvBatchSize, v), err)
		}
		c.BatchSize = n
	}
	return c, nil
}

// WithName sets the stage name.
func (c Config) WithName(name string) Config {
	c.Name = name
	return c
}

// WithCollection sets the collection expression.
func (c Config) WithCollection(expr string) Config {
	c.Collection = expr
	return c
}

// WithBatchSize sets the batch size.
func (c Config) WithBatchSize(n int) Config {
	c.BatchSize = n
	return c
}

// WithRootMessageVariableName sets the root reference property name.
func (c Config) WithRootMessageVariableName(name string) Config {
	c.RootMessageVariableName = name
	return c
}

// WithCounterVariableName sets the counter property name.
func (c Config) WithCounterVariableName(name string) Config {
	c.CounterVariableName = name
	return c
}

// WithSplit forces a split kind.
func (c Config) WithSplit(kind string) Config {
	c.Split = kind
	return c
}

// WithStages sets the inner stages.
func (c Config) WithStages(stages ...chain.Stage) Config {
	c.Stages = stages
	return c
}
