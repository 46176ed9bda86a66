package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/message"
)

func appendStage(tag string) Stage {
	return StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		msg.Payload = msg.Payload.(string) + tag
		return msg, nil
	})
}

// twice runs its listener two times per message
type twice struct {
	next Stage
}

func (t *twice) SetListener(next Stage) { t.next = next }

func (t *twice) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	for i := 0; i < 2; i++ {
		if _, err := t.next.Process(ctx, msg); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func TestChain_Process_InOrder(t *testing.T) {
	c, err := NewBuilder().Chain(appendStage("a"), appendStage("b")).Chain(appendStage("c")).Build()
	require.NoError(t, err)

	out, err := c.Process(context.Background(), message.NewMessage(""))

	require.NoError(t, err)
	assert.Equal(t, "abc", out.Payload)
	assert.Equal(t, 3, c.Len())
}

func TestChain_Process_Empty(t *testing.T) {
	c, err := NewBuilder().Build()
	require.NoError(t, err)
	msg := message.NewMessage("x")

	out, err := c.Process(context.Background(), msg)

	require.NoError(t, err)
	assert.Same(t, msg, out)
}

func TestChain_Process_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	c, err := NewBuilder().Chain(
		appendStage("a"),
		StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) { return nil, boom }),
		appendStage("never"),
	).Build()
	require.NoError(t, err)
	msg := message.NewMessage("")

	_, err = c.Process(context.Background(), msg)

	assert.Same(t, boom, err)
	assert.Equal(t, "a", msg.Payload)
}

func TestChain_Process_NilStopsChain(t *testing.T) {
	c, err := NewBuilder().Chain(
		StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) { return nil, nil }),
		appendStage("never"),
	).Build()
	require.NoError(t, err)

	out, err := c.Process(context.Background(), message.NewMessage(""))

	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBuilder_Build_Interceptor(t *testing.T) {
	tw := &twice{}
	c, err := NewBuilder().Chain(appendStage("<"), tw, appendStage("x")).Build()
	require.NoError(t, err)

	out, err := c.Process(context.Background(), message.NewMessage(""))

	require.NoError(t, err)
	assert.Equal(t, "<xx", out.Payload)
	assert.Equal(t, 2, c.Len(), "stages after the interceptor belong to its listener")
	require.NotNil(t, tw.next)
}

func TestBuilder_Build_NilStage(t *testing.T) {
	_, err := NewBuilder().Named("inner").Chain(appendStage("a"), nil).Build()

	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrChainBuild))
	assert.Contains(t, err.Error(), "chain inner stage 1 is nil")
}

func TestBuilder_Build_NilStageAfterInterceptor(t *testing.T) {
	_, err := NewBuilder().Chain(&twice{}, appendStage("a"), nil).Build()

	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrChainBuild))
}

func TestWrap_Order(t *testing.T) {
	var trail []string
	tag := func(name string) Middleware {
		return func(next Stage) Stage {
			return StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
				trail = append(trail, name)
				return next.Process(ctx, msg)
			})
		}
	}
	inner := StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		trail = append(trail, "stage")
		return msg, nil
	})

	_, err := Wrap(inner, tag("outer"), tag("inner")).Process(context.Background(), message.NewMessage(nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "stage"}, trail)
}

func TestRecovery(t *testing.T) {
	panicking := StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		panic("boom")
	})

	out, err := Wrap(panicking, Recovery()).Process(context.Background(), message.NewMessage(nil))

	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered: boom")
}

func TestValidation(t *testing.T) {
	pass := StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) { return msg, nil })
	stage := Wrap(pass, Validation())

	_, err := stage.Process(context.Background(), nil)
	assert.EqualError(t, err, "message is nil")

	_, err = stage.Process(context.Background(), &message.Message{})
	assert.EqualError(t, err, "message ID is empty")

	msg := message.NewMessage(nil)
	out, err := stage.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Same(t, msg, out)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	fail := StageFunc(func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		return nil, errors.New("nope")
	})

	_, err := Wrap(fail, Logging(zap.New(core))).Process(context.Background(), message.NewMessage(nil))

	require.Error(t, err)
	entries := logs.FilterMessage("Stage failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "nope", entries[0].ContextMap()["error"])
}
