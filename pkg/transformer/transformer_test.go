package transformer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
)

func TestRegistry_Lookup_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup(XMLString, XMLDocument)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrTransformerNotFound))
	assert.Contains(t, err.Error(), "xml/string -> xml/document")
}

func TestRegistry_Register_ReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(Func{From: JSONString, To: JSONDocument, Fn: func(v interface{}) (interface{}, error) { return "first", nil }})
	r.Register(Func{From: JSONString, To: JSONDocument, Fn: func(v interface{}) (interface{}, error) { return "second", nil }})

	tr, err := r.Lookup(JSONString, JSONDocument)
	require.NoError(t, err)

	out, err := tr.Transform(nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestXMLTransformers_RoundTrip(t *testing.T) {
	r := DefaultRegistry()
	toDoc, err := r.Lookup(XMLString, XMLDocument)
	require.NoError(t, err)
	toXML, err := r.Lookup(XMLDocument, XMLString)
	require.NoError(t, err)

	doc, err := toDoc.Transform("<a><b/><b/></a>")
	require.NoError(t, err)
	node, ok := doc.(*xmlquery.Node)
	require.True(t, ok)
	assert.Len(t, xmlquery.Find(node, "//b"), 2)

	text, err := toXML.Transform(doc)
	require.NoError(t, err)

	reparsed, err := xmlquery.Parse(strings.NewReader(text.(string)))
	require.NoError(t, err)
	assert.Len(t, xmlquery.Find(reparsed, "/a/b"), 2)
}

func TestXMLToDocument_AcceptsBytes(t *testing.T) {
	doc, err := XMLToDocument().Transform([]byte("<root><item>1</item></root>"))

	require.NoError(t, err)
	assert.Equal(t, "1", xmlquery.FindOne(doc.(*xmlquery.Node), "//item").InnerText())
}

func TestXMLToDocument_RejectsNonText(t *testing.T) {
	_, err := XMLToDocument().Transform(42)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse int as XML")
}

func TestDocumentToXML_RejectsNonNode(t *testing.T) {
	_, err := DocumentToXML().Transform("<a/>")

	require.Error(t, err)
}

func TestJSONTransformers_RoundTrip(t *testing.T) {
	doc, err := JSONToDocument().Transform(`{"items":[1,2,3]}`)
	require.NoError(t, err)

	m, ok := doc.(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, m["items"], 3)

	m["extra"] = true
	text, err := DocumentToJSON().Transform(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[1,2,3],"extra":true}`, text.(string))
}

func TestJSONTransformers_RoundTripKeepsNumbers(t *testing.T) {
	input := `{"big":12345678901234567891,"exact":9007199254740993,"frac":0.1}`

	doc, err := JSONToDocument().Transform(input)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), doc.(map[string]interface{})["exact"])

	text, err := DocumentToJSON().Transform(doc)
	require.NoError(t, err)
	assert.Equal(t, input, text)
}

func TestJSONToDocument_TrailingData(t *testing.T) {
	_, err := JSONToDocument().Transform(`{"a":1} {"b":2}`)

	assert.Error(t, err)
}

func TestJSONToDocument_InvalidJSON(t *testing.T) {
	_, err := JSONToDocument().Transform("{not json")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode JSON")
}
