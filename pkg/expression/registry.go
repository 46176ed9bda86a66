package expression

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/message"
	"github.com/wehubfusion/foreach/pkg/transformer"
)

// Evaluator evaluates expression bodies of one language.
type Evaluator interface {
	// Compile validates body without evaluating it.
	Compile(body string) error

	// Evaluate evaluates body against msg.
	Evaluate(ctx context.Context, body string, msg *message.Message) (interface{}, error)
}

// Structure describes a structural language: one that queries a tree
// representation of the payload rather than the payload as given.
type Structure struct {
	// Text is the textual representation payloads arrive in
	Text transformer.DataType
	// Tree is the representation the language queries
	Tree transformer.DataType
	// BranchLanguage is the language producing a collection of sub-trees
	// for the same body. Empty means the language itself does.
	BranchLanguage string
}

// Registry maps languages to evaluators. It is safe for concurrent use.
type Registry struct {
	evaluators map[string]Evaluator
	structures map[string]Structure
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[string]Evaluator),
		structures: make(map[string]Structure),
	}
}

// DefaultRegistry creates a registry with all built-in languages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(LanguageJS, NewJSEvaluator())
	r.Register(LanguageJSON, NewJSONEvaluator())
	r.Register(LanguageCEL, NewCELEvaluator())
	r.RegisterStructural(LanguageJQ, NewJQEvaluator(), Structure{
		Text: transformer.JSONString,
		Tree: transformer.JSONDocument,
	})
	r.RegisterStructural(LanguageXPath, NewXPathEvaluator(false), Structure{
		Text:           transformer.XMLString,
		Tree:           transformer.XMLDocument,
		BranchLanguage: LanguageXPathBranch,
	})
	r.Register(LanguageXPathBranch, NewXPathEvaluator(true))
	return r
}

// Register registers an evaluator for a language, replacing any existing one.
func (r *Registry) Register(language string, evaluator Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[language] = evaluator
	delete(r.structures, language)
}

// RegisterStructural registers an evaluator for a structural language.
func (r *Registry) RegisterStructural(language string, evaluator Evaluator, structure Structure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[language] = evaluator
	r.structures[language] = structure
}

// Structure returns the structure of a structural language.
func (r *Registry) Structure(language string) (Structure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.structures[language]
	return s, ok
}

// Languages returns the registered languages in sorted order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.evaluators))
	for l := range r.evaluators {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Lookup returns the evaluator for a language.
func (r *Registry) Lookup(language string) (Evaluator, error) {
	r.mu.RLock()
	ev, ok := r.evaluators[language]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ferrors.ErrUnknownLanguage, language)
	}
	return ev, nil
}

// Compile validates expr against its evaluator.
func (r *Registry) Compile(expr Expression) error {
	ev, err := r.Lookup(expr.Language)
	if err != nil {
		return ferrors.Expression("cannot compile "+expr.String(), err)
	}
	if err := ev.Compile(expr.Body); err != nil {
		return ferrors.Expression("cannot compile "+expr.String(), fmt.Errorf("%w: %v", ferrors.ErrInvalidExpression, err))
	}
	return nil
}

// Evaluate evaluates expr against msg.
func (r *Registry) Evaluate(ctx context.Context, expr Expression, msg *message.Message) (interface{}, error) {
	ev, err := r.Lookup(expr.Language)
	if err != nil {
		return nil, ferrors.Expression("cannot evaluate "+expr.String(), err)
	}
	value, err := ev.Evaluate(ctx, expr.Body, msg)
	if err != nil {
		return nil, ferrors.Expression("failed to evaluate "+expr.String(), err)
	}
	return value, nil
}

// EvaluateString parses raw and evaluates it against msg.
func (r *Registry) EvaluateString(ctx context.Context, raw string, msg *message.Message) (interface{}, error) {
	expr, err := Parse(raw)
	if err != nil {
		return nil, ferrors.Expression("cannot parse expression", err)
	}
	return r.Evaluate(ctx, expr, msg)
}
