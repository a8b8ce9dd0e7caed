package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pawprint-gateway/internal/utils"
)

// ServiceUUID is the PawPrint GATT service.
const ServiceUUID = "0000180c-0000-1000-8000-00805f9b34fb"

// Characteristic UUID fragments inside ServiceUUID.
const (
	WriteCharacteristicFragment  = "150a"
	NotifyCharacteristicFragment = "150b"
)

// Dialer opens a link to a device. Dial must discover the service and
// the write characteristic before returning; a missing write
// characteristic is reported as ErrCharacteristicNotFound. onLinkLost is
// called (from any goroutine) when the link drops.
type Dialer interface {
	Dial(ctx context.Context, address string, onLinkLost func()) (Link, error)
}

// Link is an established connection to one device.
type Link interface {
	// Write sends one frame to the write characteristic.
	Write(frame []byte) error
	// Subscribe registers the notification callback. The buffer passed to
	// fn may be reused by the transport after fn returns.
	Subscribe(fn func(frame []byte)) error
	Disconnect() error
}

// linkWriter serializes every write to a link. Caller commands and blink
// ticks share it, so frames reach the device in the order they were
// issued.
type linkWriter struct {
	mu     sync.Mutex
	link   Link
	logger *slog.Logger
}

func newLinkWriter(link Link, logger *slog.Logger) *linkWriter {
	return &linkWriter{link: link, logger: logger}
}

func (w *linkWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.link.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	w.logger.Debug("tx", "frame", utils.FormatFrame(frame))
	return nil
}
