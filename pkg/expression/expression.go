// Package expression evaluates textual expressions against messages.
//
// Expressions use the form "#[language:body]". "#[body]" and bare strings
// use DefaultLanguage. Supported languages in DefaultRegistry:
//
//   - js: JavaScript (goja) with payload, vars and message in scope
//   - json: gjson path over JSON payloads ("items.#.id", "/items")
//   - cel: Common Expression Language with payload and vars
//   - jq: jq program over decoded JSON; every output is one element
//   - xpath: XPath over XML documents, scalar results
//   - xpath-branch: XPath over XML documents, node-set results
//
// jq and xpath are structural: they query a tree representation of the
// payload, described by a Structure registered alongside the evaluator.
package expression

import (
	"fmt"
	"strings"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
)

// Language names registered by DefaultRegistry.
const (
	LanguageJS          = "js"
	LanguageJSON        = "json"
	LanguageCEL         = "cel"
	LanguageJQ          = "jq"
	LanguageXPath       = "xpath"
	LanguageXPathBranch = "xpath-branch"

	// DefaultLanguage is used when an expression names no language
	DefaultLanguage = LanguageJS
)

// Expression is a parsed expression.
type Expression struct {
	// Language selects the evaluator
	Language string
	// Body is the expression text handed to the evaluator
	Body string
}

// Parse parses raw into an Expression.
func Parse(raw string) (Expression, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "#[") {
		if !strings.HasSuffix(text, "]") {
			return Expression{}, fmt.Errorf("%w: unterminated expression %q", ferrors.ErrInvalidExpression, raw)
		}
		text = strings.TrimSpace(text[2 : len(text)-1])
	}

	expr := Expression{Language: DefaultLanguage, Body: text}
	if idx := strings.Index(text, ":"); idx > 0 && isLanguageName(strings.TrimSpace(text[:idx])) {
		expr.Language = strings.TrimSpace(text[:idx])
		expr.Body = strings.TrimSpace(text[idx+1:])
	}

	if expr.Body == "" {
		return Expression{}, fmt.Errorf("%w: empty expression %q", ferrors.ErrInvalidExpression, raw)
	}
	return expr, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) Expression {
	expr, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return expr
}

// String renders the expression in its canonical form.
func (e Expression) String() string {
	return "#[" + e.Language + ":" + e.Body + "]"
}

// WithLanguage returns a copy of e evaluated by another language.
func (e Expression) WithLanguage(language string) Expression {
	e.Language = language
	return e
}

func isLanguageName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return s != ""
}
