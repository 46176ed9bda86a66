package foreach

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/foreach/pkg/chain"
	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/stages"
)

// TypeForeach is the definition type of a foreach stage
const TypeForeach = "foreach"

// Definition describes a stage declaratively.
//
//	type: foreach
//	name: lines
//	config:
//	  collection: "#[payload.lines]"
//	  batchSize: 2
//	stages:
//	  - type: log
//	    config: {message: "#[payload]"}
type Definition struct {
	Type   string       `yaml:"type"`
	Name   string       `yaml:"name"`
	Config yaml.Node    `yaml:"config"`
	Stages []Definition `yaml:"stages"`
}

// Decode decodes the config block into target. An absent block leaves
// target unchanged.
func (d Definition) Decode(target interface{}) error {
	if d.Config.Kind == 0 {
		return nil
	}
	return d.Config.Decode(target)
}

// Scope is what a stage creator knows about its position in a definition.
type Scope struct {
	Factory *StageFactory
	// RootProperty is the root reference property of the enclosing foreach
	RootProperty string
}

// StageCreator creates a stage from its definition.
type StageCreator func(def Definition, scope Scope) (chain.Stage, error)

// StageFactory builds stages from definitions. It is safe for concurrent use.
type StageFactory struct {
	creators map[string]StageCreator
	mu       sync.RWMutex
	opts     options
	raw      []Option
}

// NewStageFactory creates a factory with no registered types. opts are
// passed to every foreach stage it builds.
func NewStageFactory(opts ...Option) *StageFactory {
	o := buildOptions(opts)
	return &StageFactory{
		creators: make(map[string]StageCreator),
		opts:     o,
		// nested stages share one set of registries
		raw: append(append([]Option{}, opts...), WithEvaluators(o.evaluators), WithTransformers(o.transformers)),
	}
}

// DefaultStageFactory creates a factory with every built-in stage type.
// The publish type is added by RegisterPublisher.
func DefaultStageFactory(opts ...Option) *StageFactory {
	f := NewStageFactory(opts...)
	f.Register(TypeForeach, createForeach)
	f.Register("log", func(def Definition, scope Scope) (chain.Stage, error) {
		var cfg stages.LogConfig
		if err := def.Decode(&cfg); err != nil {
			return nil, err
		}
		name := def.Name
		if name == "" {
			name = "log"
		}
		return stages.NewLog(name, cfg, scope.Factory.opts.evaluators, scope.Factory.opts.logger)
	})
	f.Register("script", func(def Definition, _ Scope) (chain.Stage, error) {
		var cfg stages.ScriptConfig
		if err := def.Decode(&cfg); err != nil {
			return nil, err
		}
		return stages.NewScript(cfg)
	})
	f.Register("set-property", func(def Definition, scope Scope) (chain.Stage, error) {
		var cfg stages.SetPropertyConfig
		if err := def.Decode(&cfg); err != nil {
			return nil, err
		}
		return stages.NewSetProperty(cfg, scope.Factory.opts.evaluators)
	})
	f.Register("set-json", func(def Definition, scope Scope) (chain.Stage, error) {
		var cfg stages.SetJSONConfig
		if err := def.Decode(&cfg); err != nil {
			return nil, err
		}
		return stages.NewSetJSON(cfg, scope.Factory.opts.evaluators)
	})
	f.Register("collect", func(def Definition, scope Scope) (chain.Stage, error) {
		var cfg stages.CollectConfig
		if err := def.Decode(&cfg); err != nil {
			return nil, err
		}
		return stages.NewCollect(cfg, scope.RootProperty)
	})
	return f
}

// RegisterPublisher registers the publish stage type backed by publisher.
func (f *StageFactory) RegisterPublisher(publisher stages.Publisher) {
	f.Register("publish", func(def Definition, _ Scope) (chain.Stage, error) {
		var cfg stages.PublishConfig
		if err := def.Decode(&cfg); err != nil {
			return nil, err
		}
		return stages.NewPublish(cfg, publisher)
	})
}

// Register registers a creator for a stage type, replacing any existing one.
func (f *StageFactory) Register(stageType string, creator StageCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[stageType] = creator
}

// HasCreator checks if a creator exists for a stage type.
func (f *StageFactory) HasCreator(stageType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[stageType]
	return exists
}

// RegisteredTypes returns all registered stage types in sorted order.
func (f *StageFactory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create creates a stage from its definition.
// Returns ErrUnknownStageType if no creator is registered for the type.
func (f *StageFactory) Create(def Definition, scope Scope) (chain.Stage, error) {
	f.mu.RLock()
	creator, exists := f.creators[def.Type]
	f.mu.RUnlock()
	if !exists {
		return nil, ferrors.Configuration(fmt.Sprintf("stage %q", def.Name), fmt.Errorf("%w: %s", ferrors.ErrUnknownStageType, def.Type))
	}
	scope.Factory = f
	stage, err := creator(def, scope)
	if err != nil {
		if ferrors.IsConfiguration(err) {
			return nil, err
		}
		return nil, ferrors.Configuration(fmt.Sprintf("failed to create stage %s (%s)", def.Name, def.Type), err)
	}
	return stage, nil
}

// CreateAll creates stages in order.
func (f *StageFactory) CreateAll(defs []Definition, scope Scope) ([]chain.Stage, error) {
	out := make([]chain.Stage, 0, len(defs))
	for _, def := range defs {
		stage, err := f.Create(def, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, stage)
	}
	return out, nil
}

// Build builds a top-level foreach stage from def. Environment overrides
// apply to this stage only.
func (f *StageFactory) Build(def Definition) (*Stage, error) {
	if def.Type == "" {
		def.Type = TypeForeach
	}
	if def.Type != TypeForeach {
		return nil, ferrors.Configuration(fmt.Sprintf("top-level stage must be %s, got %q", TypeForeach, def.Type), nil)
	}
	cfg, err := foreachConfig(def)
	if err != nil {
		return nil, err
	}
	if cfg, err = cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return f.newForeach(cfg, def)
}

// Load reads a YAML definition and builds the top-level foreach stage.
func (f *StageFactory) Load(r io.Reader) (*Stage, error) {
	def, err := LoadDefinition(r)
	if err != nil {
		return nil, err
	}
	return f.Build(def)
}

// LoadFile reads a YAML definition file and builds the top-level foreach stage.
func (f *StageFactory) LoadFile(path string) (*Stage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ferrors.Configuration("cannot open definition", err)
	}
	defer file.Close()
	return f.Load(file)
}

// LoadDefinition decodes a YAML definition.
func LoadDefinition(r io.Reader) (Definition, error) {
	var def Definition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil {
		return Definition{}, ferrors.Configuration("invalid definition", err)
	}
	return def, nil
}

func createForeach(def Definition, scope Scope) (chain.Stage, error) {
	cfg, err := foreachConfig(def)
	if err != nil {
		return nil, err
	}
	return scope.Factory.newForeach(cfg, def)
}

func foreachConfig(def Definition) (Config, error) {
	cfg := DefaultConfig()
	if err := def.Decode(&cfg); err != nil {
		return cfg, ferrors.Configuration("invalid foreach config", err)
	}
	if def.Name != "" {
		cfg.Name = def.Name
	}
	return cfg, nil
}

func (f *StageFactory) newForeach(cfg Config, def Definition) (*Stage, error) {
	root := cfg.RootMessageVariableName
	if root == "" {
		root = DefaultRootMessageVariableName
	}
	inner, err := f.CreateAll(def.Stages, Scope{RootProperty: root})
	if err != nil {
		return nil, err
	}
	return New(cfg.WithStages(inner...), f.raw...)
}
