package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

func sampleEvent() types.AccessEvent {
	return types.AccessEvent{
		ID:             "ev-1",
		Credential:     "12345",
		DeviceSerial:   "SN-1",
		Decision:       types.Allow,
		Reason:         types.ReasonRuleMatch,
		OccurredAt:     time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
		IdempotencyKey: "k",
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "none", p.Name())
	p.Close()
}

func TestKafkaMessage(t *testing.T) {
	msg, err := kafkaMessage("access-events", sampleEvent())
	require.NoError(t, err)

	require.NotNil(t, msg.TopicPartition.Topic)
	assert.Equal(t, "access-events", *msg.TopicPartition.Topic)
	assert.Equal(t, []byte("SN-1"), msg.Key)

	var decoded types.AccessEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "ev-1", decoded.ID)
	assert.Equal(t, types.Allow, decoded.Decision)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "allow", string(msg.Headers[0].Value))
}

func TestRedis_PublishReachesSubscriber(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	p := NewRedis(mr.Addr(), "", 0, "")
	defer p.Close()
	require.NoError(t, p.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := p.Subscribe(ctx)

	// Subscribe is asynchronous; wait until miniredis sees the subscriber.
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	select {
	case m := <-msgs:
		assert.Equal(t, DefaultRedisChannel, m.Channel)
		var decoded types.AccessEvent
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &decoded))
		assert.Equal(t, "SN-1", decoded.DeviceSerial)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedis_PublishError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	p := NewRedis(mr.Addr(), "", 0, "custom")
	defer p.Close()
	mr.Close()

	err = p.Publish(context.Background(), sampleEvent())
	assert.Error(t, err)
}
