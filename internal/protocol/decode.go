package protocol

import (
	"encoding/binary"
	"math"
)

const (
	minFrameLen   = 3
	accelFrameLen = 13

	offsetX = 7
	offsetY = 9
	offsetZ = 11
)

// Sample is one raw accelerometer reading.
type Sample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// Buttons holds the pressed state of each button.
type Buttons struct {
	B1 bool `json:"b1"`
	B2 bool `json:"b2"`
	B3 bool `json:"b3"`
}

// Pressed reports the stored state of b.
func (s Buttons) Pressed(b Button) bool {
	switch b {
	case B1:
		return s.B1
	case B2:
		return s.B2
	case B3:
		return s.B3
	}
	return false
}

func (s *Buttons) set(b Button, pressed bool) {
	switch b {
	case B1:
		s.B1 = pressed
	case B2:
		s.B2 = pressed
	case B3:
		s.B3 = pressed
	}
}

// Edge is a button press (Pressed=true) or release transition.
type Edge struct {
	Button  Button
	Pressed bool
}

// Telemetry is the combined update produced by a frame carrying
// accelerometer data.
type Telemetry struct {
	Accel   Sample  `json:"accel"`
	Buttons Buttons `json:"buttons"`
	Shake   float64 `json:"shake"`
}

// Update is everything one inbound frame produced. A zero Update means
// the frame was discarded or changed nothing observable.
type Update struct {
	Edges     []Edge
	Telemetry *Telemetry
}

func (u Update) Empty() bool {
	return len(u.Edges) == 0 && u.Telemetry == nil
}

// Decoder turns notification frames into updates. It keeps the previous
// accelerometer sample and button state, so one Decoder belongs to one
// session and is not safe for concurrent use.
type Decoder struct {
	sample  Sample
	buttons Buttons
}

// Decode processes one frame. Short frames and acknowledgements are
// dropped without error: partial packets are normal on a lossy link.
func (d *Decoder) Decode(frame []byte) Update {
	var u Update
	if len(frame) < minFrameLen || frame[0] == opAck {
		return u
	}

	// Active low, and the byte order is reversed relative to the ids.
	next := Buttons{
		B1: frame[2] == 0x00,
		B2: frame[1] == 0x00,
		B3: frame[0] == 0x00,
	}
	for _, b := range [...]Button{B1, B2, B3} {
		pressed := next.Pressed(b)
		if d.buttons.Pressed(b) != pressed {
			u.Edges = append(u.Edges, Edge{Button: b, Pressed: pressed})
		}
		d.buttons.set(b, pressed)
	}

	if len(frame) < accelFrameLen {
		return u
	}

	s := Sample{
		X: readInt16(frame, offsetX),
		Y: readInt16(frame, offsetY),
		Z: readInt16(frame, offsetZ),
	}
	shake := Shake(d.sample, s)
	d.sample = s

	u.Telemetry = &Telemetry{
		Accel:   s,
		Buttons: d.buttons,
		Shake:   shake,
	}
	return u
}

// Sample returns the last decoded accelerometer sample.
func (d *Decoder) Sample() Sample {
	return d.sample
}

// Buttons returns the current button state.
func (d *Decoder) Buttons() Buttons {
	return d.buttons
}

// Reset forgets the stored sample and button state.
func (d *Decoder) Reset() {
	*d = Decoder{}
}

// Shake is the magnitude of the per-axis change between two samples.
func Shake(prev, cur Sample) float64 {
	dx := float64(cur.X) - float64(prev.X)
	dy := float64(cur.Y) - float64(prev.Y)
	dz := float64(cur.Z) - float64(prev.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// readInt16 reads a big-endian two's-complement value.
func readInt16(b []byte, off int) int16 {
	return int16(binary.BigEndian.Uint16(b[off : off+2]))
}
