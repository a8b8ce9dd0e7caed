package session

import "pawprint-gateway/internal/protocol"

// Event is emitted by a Session. The concrete types are Connected,
// Disconnected, ButtonDown, ButtonUp and Data.
type Event interface {
	Kind() string
	isEvent()
}

type Connected struct {
	Address string
}

// Disconnected follows both a requested disconnect and a link loss.
type Disconnected struct {
	Address   string
	Requested bool
}

type ButtonDown struct {
	Button protocol.Button
}

type ButtonUp struct {
	Button protocol.Button
}

// Data is emitted for every frame carrying accelerometer data.
type Data struct {
	protocol.Telemetry
}

func (Connected) Kind() string    { return "connected" }
func (Disconnected) Kind() string { return "disconnected" }
func (ButtonDown) Kind() string   { return "buttondown" }
func (ButtonUp) Kind() string     { return "buttonup" }
func (Data) Kind() string         { return "data" }

func (Connected) isEvent()    {}
func (Disconnected) isEvent() {}
func (ButtonDown) isEvent()   {}
func (ButtonUp) isEvent()     {}
func (Data) isEvent()         {}
