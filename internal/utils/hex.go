package utils

import "fmt"

// FormatFrame renders a frame as space separated upper-case hex bytes
// (e.g. "53 01 FF") for log attributes.
func FormatFrame(b []byte) string {
	return fmt.Sprintf("% X", b)
}
