package protocol

import "math"

const radToDeg = 180 / math.Pi

// Tilt holds orientation angles in degrees.
type Tilt struct {
	Roll     float64 `json:"roll"`
	Pitch    float64 `json:"pitch"`
	Pitch360 float64 `json:"pitch360"`
}

// TiltOf derives roll and pitch from a raw sample. Pitch is limited to
// ±90°; Pitch360 covers the full circle around the x axis.
func TiltOf(s Sample) Tilt {
	x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
	return Tilt{
		Roll:     math.Atan2(x, z) * radToDeg,
		Pitch:    math.Atan2(y, math.Sqrt(x*x+z*z)) * radToDeg,
		Pitch360: math.Atan2(y, z) * radToDeg,
	}
}
