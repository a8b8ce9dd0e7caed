package session

import "errors"

var (
	// ErrNoDeviceSelected is returned by Connect without a device address.
	ErrNoDeviceSelected = errors.New("no device selected")

	// ErrCharacteristicNotFound means the write characteristic is
	// missing; the connect attempt is aborted.
	ErrCharacteristicNotFound = errors.New("write characteristic not found")

	// ErrNotifyUnavailable is returned by Link.Subscribe when the device
	// has no notify characteristic. Telemetry is disabled, the
	// connection stays up.
	ErrNotifyUnavailable = errors.New("notify characteristic not found")

	// ErrWriteFailure wraps a failed transport write. The command is
	// dropped, never retried.
	ErrWriteFailure = errors.New("write failed")

	// ErrNotConnected is returned by LED/data commands outside the
	// Connected state.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidState is returned by Connect/Disconnect when the session
	// is busy in another transition.
	ErrInvalidState = errors.New("invalid session state")

	// ErrClosed is returned once Run has exited.
	ErrClosed = errors.New("session closed")
)
