// Package ble connects the session to a PawPrint over BlueZ using
// tinygo.org/x/bluetooth, with link-loss detection on the system D-Bus.
package ble

import (
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

type Options struct {
	Adapter string // "hci0" by default
	Logger  *slog.Logger
}

// Central owns the local adapter. It finds devices (Find) and opens
// links to them (Dial, implementing session.Dialer).
type Central struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger

	enableOnce sync.Once
	enableErr  error
}

func NewCentral(opts Options) *Central {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Central{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  opts.Logger,
	}
}

func (c *Central) enable() error {
	c.enableOnce.Do(func() {
		c.logger.Info("ble: enabling adapter", "adapter", c.opts.Adapter)
		if err := c.adapter.Enable(); err != nil {
			c.enableErr = fmt.Errorf("ble enable (%s): %w", c.opts.Adapter, err)
			return
		}
		c.logger.Info("ble: adapter enabled", "adapter", c.opts.Adapter)
	})
	return c.enableErr
}
