package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/message"
)

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func TestLog_Process(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	stage, err := NewLog("audit", LogConfig{Message: "#[payload.sku]", Properties: []string{"counter", "rootMessage"}}, expression.DefaultRegistry(), zap.New(core))
	require.NoError(t, err)
	root := message.NewMessage(nil)
	msg := message.NewChildMessage(root, map[string]interface{}{"sku": "a-1"})
	msg.SetProperty("counter", 2)
	msg.SetProperty("rootMessage", root)

	out, err := stage.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.Same(t, msg, out)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit", entry.LoggerName)
	fields := entry.ContextMap()
	assert.Equal(t, "a-1", fields["value"])
	assert.Equal(t, int64(2), fields["counter"])
	assert.Equal(t, "message:"+root.ID, fields["rootMessage"])
}

func TestLog_LevelFiltered(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stage, err := NewLog("quiet", LogConfig{Level: "debug"}, nil, zap.New(core))
	require.NoError(t, err)

	_, err = stage.Process(context.Background(), message.NewMessage(nil))

	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestLog_InvalidLevel(t *testing.T) {
	_, err := NewLog("x", LogConfig{Level: "loud"}, nil, nil)
	assert.Error(t, err)
}

func TestSetProperty_Process(t *testing.T) {
	stage, err := NewSetProperty(SetPropertyConfig{Property: "total", Value: "#[cel:payload.qty * 2]"}, expression.DefaultRegistry())
	require.NoError(t, err)
	msg := message.NewMessage(map[string]interface{}{"qty": 4})

	_, err = stage.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, int64(8), msg.Properties["total"])
}

func TestSetProperty_Invalid(t *testing.T) {
	_, err := NewSetProperty(SetPropertyConfig{Value: "#[1]"}, expression.DefaultRegistry())
	assert.Error(t, err)

	_, err = NewSetProperty(SetPropertyConfig{Property: "x", Value: "#[cel:1 +]"}, expression.DefaultRegistry())
	assert.Error(t, err)
}

func TestSetJSON_Process(t *testing.T) {
	stage, err := NewSetJSON(SetJSONConfig{Path: "status", Value: "#['done']"}, expression.DefaultRegistry())
	require.NoError(t, err)

	text := message.NewMessage(`{"id":1}`)
	_, err = stage.Process(context.Background(), text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"status":"done"}`, text.Payload.(string))

	raw := message.NewMessage([]byte(`{"id":2}`))
	_, err = stage.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"status":"done"}`, string(raw.Payload.([]byte)))

	decoded := message.NewMessage(map[string]interface{}{"id": 3})
	_, err = stage.Process(context.Background(), decoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": float64(3), "status": "done"}, decoded.Payload)
}

func TestCollect_Process(t *testing.T) {
	stage, err := NewCollect(CollectConfig{}, "rootMessage")
	require.NoError(t, err)
	root := message.NewMessage(nil)

	for _, payload := range []interface{}{"a", "b"} {
		sub := message.NewChildMessage(root, payload)
		sub.SetProperty("rootMessage", root)
		_, err := stage.Process(context.Background(), sub)
		require.NoError(t, err)
	}

	assert.Equal(t, []interface{}{"a", "b"}, root.Properties[DefaultCollectProperty])
}

func TestCollect_Process_DoesNotAliasEarlierList(t *testing.T) {
	stage, err := NewCollect(CollectConfig{}, "rootMessage")
	require.NoError(t, err)
	root := message.NewMessage(nil)
	root.SetProperty(DefaultCollectProperty, make([]interface{}, 1, 4))
	root.Properties[DefaultCollectProperty].([]interface{})[0] = "a"
	earlier := root.Properties[DefaultCollectProperty].([]interface{})

	sub := message.NewChildMessage(root, "b")
	sub.SetProperty("rootMessage", root)
	_, err = stage.Process(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"a", "b"}, root.Properties[DefaultCollectProperty])
	assert.Equal(t, []interface{}{"a"}, earlier)
	assert.Nil(t, earlier[:2][1])
}

func TestCollect_MissingRoot(t *testing.T) {
	stage, err := NewCollect(CollectConfig{Root: "origin"}, "")
	require.NoError(t, err)

	_, err = stage.Process(context.Background(), message.NewMessage("x"))

	assert.Error(t, err)
}

func TestPublish_Process(t *testing.T) {
	pub := &fakePublisher{}
	stage, err := NewPublish(PublishConfig{Subject: "orders.lines"}, pub)
	require.NoError(t, err)
	root := message.NewMessage(nil)
	msg := message.NewChildMessage(root, map[string]interface{}{"sku": "a"})
	msg.SetProperty("rootMessage", root)

	_, err = stage.Process(context.Background(), msg)

	require.NoError(t, err)
	require.Len(t, pub.data, 1)
	assert.Equal(t, "orders.lines", pub.subjects[0])
	decoded, err := message.FromBytes(pub.data[0])
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.NotContains(t, decoded.Properties, "rootMessage")
}

func TestPublish_Error(t *testing.T) {
	stage, err := NewPublish(PublishConfig{Subject: "s"}, &fakePublisher{err: errors.New("closed")})
	require.NoError(t, err)

	_, err = stage.Process(context.Background(), message.NewMessage(nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	_, err = NewPublish(PublishConfig{Subject: "s"}, nil)
	assert.Error(t, err)
}

func TestScript_Process(t *testing.T) {
	stage, err := NewScript(ScriptConfig{Source: "vars.seen = true; return payload.qty + 1;", Target: "payload"})
	require.NoError(t, err)
	msg := message.NewMessage(map[string]interface{}{"qty": 1})

	_, err = stage.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Payload)
	assert.Equal(t, true, msg.Properties["seen"])
}

func TestScript_TargetProperty(t *testing.T) {
	stage, err := NewScript(ScriptConfig{Source: "return typeof require;", Target: "kind"})
	require.NoError(t, err)
	msg := message.NewMessage(nil)

	_, err = stage.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, "undefined", msg.Properties["kind"])
}

func TestScript_Timeout(t *testing.T) {
	stage, err := NewScript(ScriptConfig{Source: "while (true) {}", TimeoutMs: 20})
	require.NoError(t, err)

	_, err = stage.Process(context.Background(), message.NewMessage(nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "script interrupted")
}

func TestScript_CompileError(t *testing.T) {
	_, err := NewScript(ScriptConfig{Source: "return (;"})
	assert.Error(t, err)

	_, err = NewScript(ScriptConfig{})
	assert.Error(t, err)
}
