package session

import (
	"fmt"

	"pawprint-gateway/internal/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Blink describes the running blink schedule.
type Blink struct {
	Color1 protocol.Color `json:"color1"`
	Color2 protocol.Color `json:"color2"`
	Hz     float64        `json:"hz"`
}

// Status is a snapshot of the session. ExternalColor is nil while a
// blink schedule owns the external LED.
type Status struct {
	State         State            `json:"state"`
	Address       string           `json:"address,omitempty"`
	InternalColor protocol.Color   `json:"internal_color"`
	ExternalColor *protocol.Color  `json:"external_color,omitempty"`
	Blink         *Blink           `json:"blink,omitempty"`
	DataEnabled   bool             `json:"data_enabled"`
	Telemetry     bool             `json:"telemetry"`
	Accel         protocol.Sample  `json:"accel"`
	Buttons       protocol.Buttons `json:"buttons"`
	Shake         float64          `json:"shake"`
}
