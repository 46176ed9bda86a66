package expression

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/message"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		language string
		body     string
	}{
		{"language prefix", "#[xpath:/a/b]", LanguageXPath, "/a/b"},
		{"default language", "#[payload.items]", DefaultLanguage, "payload.items"},
		{"bare string", "payload.items", DefaultLanguage, "payload.items"},
		{"ternary is not a language", "#[payload.x ? 1 : 2]", DefaultLanguage, "payload.x ? 1 : 2"},
		{"axis inside body", "#[xpath:child::b]", LanguageXPath, "child::b"},
		{"branch language", "#[xpath-branch://b]", LanguageXPathBranch, "//b"},
		{"whitespace", "  #[ json : items ]  ", LanguageJSON, "items"},
		{"space before colon", "#[xpath : //b]", LanguageXPath, "//b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.language, expr.Language)
			assert.Equal(t, tt.body, expr.Body)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{"", "#[]", "#[js:]", "#[payload"} {
		_, err := Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ferrors.ErrInvalidExpression), raw)
	}
}

func TestExpression_String(t *testing.T) {
	expr := MustParse("#[xpath:/a/b]")

	assert.Equal(t, "#[xpath:/a/b]", expr.String())
	assert.Equal(t, "#[xpath-branch:/a/b]", expr.WithLanguage(LanguageXPathBranch).String())
}

func TestRegistry_Structure(t *testing.T) {
	r := DefaultRegistry()

	s, ok := r.Structure(LanguageXPath)
	require.True(t, ok)
	assert.Equal(t, LanguageXPathBranch, s.BranchLanguage)

	_, ok = r.Structure(LanguageJS)
	assert.False(t, ok)

	assert.Equal(t, []string{"cel", "jq", "js", "json", "xpath", "xpath-branch"}, r.Languages())
}

func TestRegistry_UnknownLanguage(t *testing.T) {
	r := DefaultRegistry()

	err := r.Compile(Expression{Language: "groovy", Body: "payload"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrUnknownLanguage))
	assert.True(t, ferrors.IsExpression(err))
}

func TestRegistry_CompileErrors(t *testing.T) {
	r := DefaultRegistry()

	for _, raw := range []string{"#[js:payload.(]", "#[cel:payload +]", "#[jq:.items[]]]", "#[xpath:/a/[]"} {
		err := r.Compile(MustParse(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ferrors.ErrInvalidExpression), raw)
	}
}

func TestJSEvaluator_Evaluate(t *testing.T) {
	r := DefaultRegistry()
	msg := message.NewMessage(map[string]interface{}{"items": []interface{}{1, 2, 3}})
	msg.SetProperty("factor", 2)

	value, err := r.EvaluateString(context.Background(), "#[payload.items.map(function(i) { return i * vars.factor })]", msg)

	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2), int64(4), int64(6)}, value)
}

func TestJSEvaluator_WritesVars(t *testing.T) {
	r := DefaultRegistry()
	msg := message.NewMessage("x")

	_, err := r.EvaluateString(context.Background(), "#[js:vars.seen = message.payload + '!']", msg)

	require.NoError(t, err)
	assert.Equal(t, "x!", msg.Properties["seen"])
}

func TestJSEvaluator_Interrupted(t *testing.T) {
	r := DefaultRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.EvaluateString(ctx, "#[js:while(true) {}]", message.NewMessage(nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "script interrupted")
}

func TestJSONEvaluator_Evaluate(t *testing.T) {
	r := DefaultRegistry()

	textual := message.NewMessage(`{"order":{"lines":[{"sku":"a"},{"sku":"b"}]}}`)
	value, err := r.EvaluateString(context.Background(), "#[json:order.lines.#.sku]", textual)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, value)

	structured := message.NewMessage(map[string]interface{}{"order": map[string]interface{}{"id": 7}})
	value, err = r.EvaluateString(context.Background(), "#[json:/order/id]", structured)
	require.NoError(t, err)
	assert.Equal(t, float64(7), value)

	value, err = r.EvaluateString(context.Background(), "#[json:missing]", structured)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestCELEvaluator_Evaluate(t *testing.T) {
	r := DefaultRegistry()
	msg := message.NewMessage(map[string]interface{}{"items": []interface{}{1, 2, 3, 4}})
	msg.SetProperty("min", 2)

	value, err := r.EvaluateString(context.Background(), "#[cel:payload.items.filter(i, i > vars.min)]", msg)

	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(3), int64(4)}, value)
}

func TestCELEvaluator_Map(t *testing.T) {
	r := DefaultRegistry()

	value, err := r.EvaluateString(context.Background(), `#[cel:{"a": 1, "b": [true]}]`, message.NewMessage(nil))

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": int64(1), "b": []interface{}{true}}, value)
}

func TestJQEvaluator_Evaluate(t *testing.T) {
	r := DefaultRegistry()
	msg := message.NewMessage(`{"items":[{"id":1},{"id":2}]}`)

	value, err := r.EvaluateString(context.Background(), "#[jq:.items[] | .id]", msg)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, value)

	value, err = r.EvaluateString(context.Background(), "#[jq:.items]", msg)
	require.NoError(t, err)
	assert.Len(t, value, 1)
}

func TestJQEvaluator_RuntimeError(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.EvaluateString(context.Background(), `#[jq:error("boom")]`, message.NewMessage(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestXPathEvaluator_Scalar(t *testing.T) {
	r := DefaultRegistry()
	msg := message.NewMessage("<order><line>a</line><line>b</line><id>42</id></order>")

	value, err := r.EvaluateString(context.Background(), "#[xpath:/order/id]", msg)
	require.NoError(t, err)
	assert.Equal(t, "42", value)

	value, err = r.EvaluateString(context.Background(), "#[xpath:/order/line]", msg)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, value)

	value, err = r.EvaluateString(context.Background(), "#[xpath:count(/order/line)]", msg)
	require.NoError(t, err)
	assert.Equal(t, float64(2), value)
}

func TestXPathEvaluator_Branch(t *testing.T) {
	r := DefaultRegistry()
	doc, err := xmlquery.Parse(strings.NewReader("<a><b/><b/></a>"))
	require.NoError(t, err)

	value, err := r.EvaluateString(context.Background(), "#[xpath-branch:/a/b]", message.NewMessage(doc))

	require.NoError(t, err)
	nodes, ok := value.([]interface{})
	require.True(t, ok)
	require.Len(t, nodes, 2)
	assert.Equal(t, "b", nodes[0].(*xmlquery.Node).Data)
	assert.NotSame(t, nodes[0], nodes[1])
}

func TestXPathEvaluator_BranchRequiresDocument(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.EvaluateString(context.Background(), "#[xpath-branch:/a/b]", message.NewMessage("<a><b/></a>"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrPayloadNotStructural))
}
