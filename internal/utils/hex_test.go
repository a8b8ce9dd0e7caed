package utils

import "testing"

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, ""},
		{[]byte{0x70}, "70"},
		{[]byte{0x53, 0x01, 0xFF}, "53 01 FF"},
		{[]byte{0x0a, 0xb0}, "0A B0"},
	}
	for _, tt := range tests {
		if got := FormatFrame(tt.in); got != tt.want {
			t.Errorf("FormatFrame(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
