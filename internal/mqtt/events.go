package mqtt

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/session"
)

type topics struct {
	gateway string
	status  string
	button  string
	data    string
}

func newTopics(prefix, deviceID string) topics {
	base := fmt.Sprintf("%s/%s", prefix, deviceID)
	return topics{
		gateway: base + "/gateway",
		status:  base + "/status",
		button:  base + "/button",
		data:    base + "/data",
	}
}

// Header is common to every published message.
type Header struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusMessage struct {
	Header
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
}

type ButtonMessage struct {
	Header
	Button  protocol.Button `json:"button"`
	Pressed bool            `json:"pressed"`
}

type DataMessage struct {
	Header
	protocol.Telemetry
	Tilt protocol.Tilt `json:"tilt"`
}

func (c *Client) header() Header {
	return Header{
		ID:        ulid.Make().String(),
		DeviceID:  c.cfg.DeviceID,
		Timestamp: time.Now().UTC(),
	}
}

// PublishEvent maps a session event onto its topic. Status messages are
// retained; data messages are rate limited and silently dropped above
// the configured rate.
func (c *Client) PublishEvent(ev session.Event) error {
	switch e := ev.(type) {
	case session.Connected:
		return c.publish(c.topics.status, 1, true, StatusMessage{Header: c.header(), State: e.Kind(), Address: e.Address})
	case session.Disconnected:
		return c.publish(c.topics.status, 1, true, StatusMessage{Header: c.header(), State: e.Kind(), Address: e.Address})
	case session.ButtonDown:
		return c.publish(c.topics.button, 1, false, ButtonMessage{Header: c.header(), Button: e.Button, Pressed: true})
	case session.ButtonUp:
		return c.publish(c.topics.button, 1, false, ButtonMessage{Header: c.header(), Button: e.Button, Pressed: false})
	case session.Data:
		if !c.dataLimit.Allow() {
			return nil
		}
		return c.publish(c.topics.data, 0, false, DataMessage{
			Header:    c.header(),
			Telemetry: e.Telemetry,
			Tilt:      protocol.TiltOf(e.Accel),
		})
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}
