package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawprint-gateway/internal/config"
	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/session"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho implements only what Client uses; other methods panic via the
// nil embedded interface.
type fakePaho struct {
	paho.Client

	mu           sync.Mutex
	connected    bool
	publishErr   error
	messages     []published
	disconnected bool
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: b})
	return doneToken{err: f.publishErr}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func testConfig() config.Config {
	return config.Config{
		MQTTTopicPrefix: "pawprint",
		MQTTDataRate:    1,
		DeviceID:        "left-paw",
	}
}

func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := &fakePaho{connected: true}
	c := newClient(testConfig(), nil)
	c.client = fake
	c.setConnected(true)
	return c, fake
}

func TestNewTopics(t *testing.T) {
	got := newTopics("home/paw", "left")
	assert.Equal(t, topics{
		gateway: "home/paw/left/gateway",
		status:  "home/paw/left/status",
		button:  "home/paw/left/button",
		data:    "home/paw/left/data",
	}, got)
}

func TestPublishEvent_Status(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.PublishEvent(session.Connected{Address: "AA:BB:CC:DD:EE:FF"}))
	require.NoError(t, c.PublishEvent(session.Disconnected{Address: "AA:BB:CC:DD:EE:FF", Requested: true}))

	require.Len(t, fake.messages, 2)
	for i, state := range []string{"connected", "disconnected"} {
		m := fake.messages[i]
		assert.Equal(t, "pawprint/left-paw/status", m.topic)
		assert.True(t, m.retained)
		assert.Equal(t, byte(1), m.qos)

		var msg StatusMessage
		require.NoError(t, json.Unmarshal(m.payload, &msg))
		assert.Equal(t, state, msg.State)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", msg.Address)
		assert.Equal(t, "left-paw", msg.DeviceID)
		assert.False(t, msg.Timestamp.IsZero())
		_, err := ulid.Parse(msg.ID)
		assert.NoError(t, err)
	}
}

func TestPublishEvent_Button(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.PublishEvent(session.ButtonDown{Button: protocol.B2}))
	require.NoError(t, c.PublishEvent(session.ButtonUp{Button: protocol.B2}))

	require.Len(t, fake.messages, 2)
	var down, up map[string]any
	require.NoError(t, json.Unmarshal(fake.messages[0].payload, &down))
	require.NoError(t, json.Unmarshal(fake.messages[1].payload, &up))

	assert.Equal(t, "pawprint/left-paw/button", fake.messages[0].topic)
	assert.False(t, fake.messages[0].retained)
	assert.Equal(t, float64(2), down["button"])
	assert.Equal(t, true, down["pressed"])
	assert.Equal(t, false, up["pressed"])
	assert.NotEqual(t, down["id"], up["id"])
}

func TestPublishEvent_DataRateLimited(t *testing.T) {
	c, fake := newTestClient(t)

	ev := session.Data{Telemetry: protocol.Telemetry{
		Accel: protocol.Sample{X: 0, Y: 0, Z: 1000},
		Shake: 12.5,
	}}
	require.NoError(t, c.PublishEvent(ev))
	// Burst of one: the second sample inside the same second is dropped.
	require.NoError(t, c.PublishEvent(ev))

	require.Len(t, fake.messages, 1)
	m := fake.messages[0]
	assert.Equal(t, "pawprint/left-paw/data", m.topic)
	assert.Equal(t, byte(0), m.qos)

	var msg DataMessage
	require.NoError(t, json.Unmarshal(m.payload, &msg))
	assert.Equal(t, int16(1000), msg.Accel.Z)
	assert.Equal(t, 12.5, msg.Shake)
	assert.InDelta(t, 0, msg.Tilt.Roll, 1e-9)
	assert.InDelta(t, 0, msg.Tilt.Pitch, 1e-9)
}

func TestPublishEvent_Errors(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		c, fake := newTestClient(t)
		c.setConnected(false)

		err := c.PublishEvent(session.Connected{Address: "AA"})
		assert.Error(t, err)
		assert.Empty(t, fake.messages)
	})

	t.Run("broker error", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.publishErr = errors.New("boom")

		err := c.PublishEvent(session.ButtonDown{Button: protocol.B1})
		require.Error(t, err)
		assert.ErrorContains(t, err, "boom")
	})
}

func TestDisconnect(t *testing.T) {
	c, fake := newTestClient(t)

	c.Disconnect()
	c.Disconnect()

	assert.True(t, fake.disconnected)
	assert.False(t, c.IsConnected())
	require.Len(t, fake.messages, 1)
	assert.Equal(t, "pawprint/left-paw/gateway", fake.messages[0].topic)
	assert.Equal(t, gatewayOffline, string(fake.messages[0].payload))
	assert.True(t, fake.messages[0].retained)

	assert.EqualError(t, c.Connect(t.Context()), "client stopped")
}
