// Package protocol implements the PawPrint wire format.
//
// Outbound frames (written to the 150a characteristic):
//
//	internal LED: [0x53, color, 0xFF|0x00]  (0xFF = sensor data enabled)
//	external LED: [0x70, color]
//
// Inbound frames (notified on the 150b characteristic):
//
//	[0] B3, [1] B2, [2] B1   active low, 0x00 = pressed
//	[0] == 0x51              acknowledgement, ignored
//	[7:9] x, [9:11] y, [11:13] z   int16 big-endian, only when len >= 13
package protocol

const (
	opInternalLED = 0x53
	opExternalLED = 0x70
	opAck         = 0x51

	dataEnabledByte  = 0xFF
	dataDisabledByte = 0x00
)

// EncodeInternal builds the internal LED frame. The same frame carries
// the sensor-data flag, so toggling data mode means re-sending the
// current internal colour.
func EncodeInternal(color Color, dataEnabled bool) []byte {
	flag := byte(dataDisabledByte)
	if dataEnabled {
		flag = dataEnabledByte
	}
	return []byte{opInternalLED, byte(color), flag}
}

// EncodeExternal builds the external LED frame.
func EncodeExternal(color Color) []byte {
	return []byte{opExternalLED, byte(color)}
}
