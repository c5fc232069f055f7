package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return tp, sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSubmitSpan_Ok(t *testing.T) {
	tp, sr := newRecordingProvider(t)
	c := NewClient(&fakeSender{}, nil, nil, nil, WithTracerProvider(tp))

	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 1)))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "protocol.Submit", span.Name())
	assert.Equal(t, TracerName, span.InstrumentationScope().Name)
	assert.NotEqual(t, codes.Error, span.Status().Code)

	state, ok := spanAttr(span, "mc.state")
	require.True(t, ok)
	assert.Equal(t, StateFresh.String(), state.AsString())

	op, ok := spanAttr(span, "mc.opcode")
	require.True(t, ok)
	assert.Equal(t, int64(OpHandshake), op.AsInt64())
}

func TestSubmitSpan_FatalFrameMarksError(t *testing.T) {
	tp, sr := newRecordingProvider(t)
	c := NewClient(&fakeSender{}, nil, nil, nil, WithTracerProvider(tp))

	err := c.Submit([]byte{0x01})
	require.ErrorIs(t, err, ErrInvalidOpcode)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Status().Description, ErrInvalidOpcode.Error())

	op, ok := spanAttr(span, "mc.opcode")
	require.True(t, ok)
	assert.Equal(t, int64(1), op.AsInt64())

	events := span.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "exception", events[0].Name)
}

func TestSubmitSpan_MalformedFrameHasNoOpcode(t *testing.T) {
	tp, sr := newRecordingProvider(t)
	c := NewClient(&fakeSender{}, nil, nil, nil, WithTracerProvider(tp))

	require.ErrorIs(t, c.Submit([]byte{0x80}), ErrMalformedFrame)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	_, ok := spanAttr(spans[0], "mc.opcode")
	assert.False(t, ok)
}

func TestFactory_PassesTracerProviderToClients(t *testing.T) {
	tp, sr := newRecordingProvider(t)
	f, err := NewFactory(nil, nil, WithTracerProvider(tp))
	require.NoError(t, err)

	c := f.NewClient(&fakeSender{}, nil)
	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 2)))
	require.NoError(t, c.Submit(loginStart("Steve")))

	assert.Len(t, sr.Ended(), 2)
}
