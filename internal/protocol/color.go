package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an LED colour id. The same ids drive the internal and the
// external LED.
type Color uint8

const (
	ColorOff    Color = 0x00
	ColorYellow Color = 0x01
	ColorRed    Color = 0x02
	ColorViolet Color = 0x03
	ColorBlue   Color = 0x04
	ColorCyan   Color = 0x05
	ColorGreen  Color = 0x06
)

var colorNames = [...]string{
	ColorOff:    "off",
	ColorYellow: "yellow",
	ColorRed:    "red",
	ColorViolet: "violet",
	ColorBlue:   "blue",
	ColorCyan:   "cyan",
	ColorGreen:  "green",
}

// Colors lists every colour in id order.
func Colors() []Color {
	return []Color{ColorOff, ColorYellow, ColorRed, ColorViolet, ColorBlue, ColorCyan, ColorGreen}
}

func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return fmt.Sprintf("color(0x%02X)", uint8(c))
}

// Valid reports whether c is one of the ids the device understands.
func (c Color) Valid() bool {
	return c <= ColorGreen
}

// ParseColor accepts a colour name (case-insensitive) or a numeric id
// such as "2" or "0x02".
func ParseColor(s string) (Color, error) {
	if c, ok := colorByName(s); ok {
		return c, nil
	}
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseUint(s, 0, 8); err == nil && Color(id).Valid() {
		return Color(id), nil
	}
	return ColorOff, invalidColor(s)
}

func colorByName(s string) (Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range colorNames {
		if name == s {
			return Color(i), true
		}
	}
	return ColorOff, false
}

func invalidColor(s string) error {
	return fmt.Errorf("invalid color %q (allowed: off, yellow, red, violet, blue, cyan, green)", s)
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid color id 0x%02X", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts colour names only; numeric ids are left to
// ParseColor.
func (c *Color) UnmarshalText(b []byte) error {
	parsed, ok := colorByName(string(b))
	if !ok {
		return invalidColor(string(b))
	}
	*c = parsed
	return nil
}

// Button identifies one of the three hardware buttons.
type Button uint8

const (
	B1 Button = 1 // top/left
	B2 Button = 2 // middle
	B3 Button = 3 // bottom/right
)

func (b Button) String() string {
	switch b {
	case B1, B2, B3:
		return fmt.Sprintf("b%d", uint8(b))
	default:
		return fmt.Sprintf("button(%d)", uint8(b))
	}
}
