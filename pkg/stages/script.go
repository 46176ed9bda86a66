package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/message"
)

// DefaultScriptTimeout bounds a single script run
const DefaultScriptTimeout = 5 * time.Second

// ScriptConfig configures a Script stage
type ScriptConfig struct {
	// Source is a function body; its return value is the result
	Source string `yaml:"source" json:"source"`
	// Target receives the result: "payload", a property name, or "" to discard it
	Target string `yaml:"target" json:"target,omitempty"`
	// TimeoutMs bounds each run; 0 uses DefaultScriptTimeout
	TimeoutMs int `yaml:"timeoutMs" json:"timeoutMs,omitempty"`
}

// Script runs JavaScript against each message with payload, vars and
// message in scope.
type Script struct {
	program *goja.Program
	target  string
	timeout time.Duration
}

var blockedGlobals = []string{"require", "module", "exports", "process", "global", "Buffer"}

// NewScript compiles a Script stage.
func NewScript(cfg ScriptConfig) (*Script, error) {
	if cfg.Source == "" {
		return nil, errors.New("script source cannot be empty")
	}
	program, err := goja.Compile("script", "(function(){\n"+cfg.Source+"\n})()", false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	timeout := DefaultScriptTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &Script{program: program, target: cfg.Target, timeout: timeout}, nil
}

// Process implements chain.Stage.
func (s *Script) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	vm := expression.NewVM(msg)
	for _, name := range blockedGlobals {
		_ = vm.Set(name, goja.Undefined())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution timeout")
		case <-stop:
		}
	}()

	value, err := vm.RunProgram(s.program)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("script interrupted: %v", interrupted.Value())
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	var result interface{}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		result = value.Export()
	}
	switch s.target {
	case "":
	case "payload":
		msg.SetPayload(result)
	default:
		msg.SetProperty(s.target, result)
	}
	return msg, nil
}
