package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/pkg/trace"
)

type recordingPublisher struct {
	routingKey string
	body       []byte
	traceID    string
	err        error
}

func (p *recordingPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.routingKey = routingKey
	p.body = b
	p.traceID = trace.FromContext(ctx)
	return nil
}

func TestPublishEvent(t *testing.T) {
	t.Run("payload is forwarded verbatim with trace id", func(t *testing.T) {
		pub := &recordingPublisher{}
		event := &Event{
			ID:         7,
			RoutingKey: "order.status_changed",
			Payload:    json.RawMessage(`{"order_id":3,"trace_id":"abc"}`),
		}

		require.NoError(t, publishEvent(context.Background(), pub, event))
		assert.Equal(t, "order.status_changed", pub.routingKey)
		assert.JSONEq(t, `{"order_id":3,"trace_id":"abc"}`, string(pub.body))
		assert.Equal(t, "abc", pub.traceID)
	})

	t.Run("publisher error is wrapped", func(t *testing.T) {
		boom := errors.New("channel closed")
		pub := &recordingPublisher{err: boom}
		err := publishEvent(context.Background(), pub, &Event{Payload: json.RawMessage(`{}`)})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

func TestWithTraceFromPayloadIgnoresGarbage(t *testing.T) {
	ctx := withTraceFromPayload(context.Background(), json.RawMessage(`not json`))
	assert.Empty(t, trace.FromContext(ctx))
}
