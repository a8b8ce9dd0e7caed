package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tinygo.org/x/bluetooth"

	"pawprint-gateway/internal/session"
)

var _ session.Dialer = (*Central)(nil)

// pickCharacteristics returns the indexes of the write (150a) and notify
// (150b) characteristics among uuids, -1 when absent.
func pickCharacteristics(uuids []string) (write, notify int) {
	write, notify = -1, -1
	for i, u := range uuids {
		u = strings.ToLower(u)
		switch {
		case write < 0 && strings.Contains(u, session.WriteCharacteristicFragment):
			write = i
		case notify < 0 && strings.Contains(u, session.NotifyCharacteristicFragment):
			notify = i
		}
	}
	return write, notify
}

// Dial connects to address and discovers the PawPrint service. A missing
// write characteristic fails the dial with session.ErrCharacteristicNotFound.
func (c *Central) Dial(ctx context.Context, address string, onLinkLost func()) (session.Link, error) {
	if err := c.enable(); err != nil {
		return nil, err
	}
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}

	dev, err := c.connect(ctx, bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}})
	if err != nil {
		return nil, err
	}

	l, err := c.discover(dev, address)
	if err != nil {
		if dErr := dev.Disconnect(); dErr != nil {
			c.logger.Debug("ble: disconnect after failed discovery", "addr", address, "error", dErr)
		}
		return nil, err
	}

	w, err := watchLink(c.opts.Adapter, address, onLinkLost, c.logger)
	if err != nil {
		c.logger.Warn("ble: link-loss watch unavailable", "addr", address, "error", err)
	}
	l.watch = w
	return l, nil
}

// connect runs the blocking adapter connect so ctx can abandon it. A
// device that connects after ctx ended is disconnected again.
func (c *Central) connect(ctx context.Context, addr bluetooth.Address) (bluetooth.Device, error) {
	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dev, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{dev: dev, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return bluetooth.Device{}, fmt.Errorf("ble connect %s: %w", addr.String(), r.err)
		}
		return r.dev, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.dev.Disconnect()
			}
		}()
		return bluetooth.Device{}, ctx.Err()
	}
}

func (c *Central) discover(dev bluetooth.Device, address string) (*link, error) {
	svcUUID, err := bluetooth.ParseUUID(session.ServiceUUID)
	if err != nil {
		return nil, err
	}
	svcs, err := dev.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("discover service %s: %w", session.ServiceUUID, err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("service %s not found on %s", session.ServiceUUID, address)
	}

	chars, err := svcs[0].DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	uuids := make([]string, len(chars))
	for i, ch := range chars {
		uuids[i] = ch.UUID().String()
	}
	wi, ni := pickCharacteristics(uuids)
	if wi < 0 {
		return nil, fmt.Errorf("%w (service %s on %s)", session.ErrCharacteristicNotFound, session.ServiceUUID, address)
	}

	l := &link{
		device:  dev,
		write:   chars[wi],
		address: address,
		logger:  c.logger,
	}
	if ni >= 0 {
		l.notify = &chars[ni]
	}
	c.logger.Info("ble: service discovered",
		"addr", address,
		"write", uuids[wi],
		"notify", ni >= 0,
	)
	return l, nil
}

// link implements session.Link over one GATT connection.
type link struct {
	device  bluetooth.Device
	write   bluetooth.DeviceCharacteristic
	notify  *bluetooth.DeviceCharacteristic
	watch   *linkWatch
	address string
	logger  *slog.Logger
}

func (l *link) Write(frame []byte) error {
	_, err := l.write.WriteWithoutResponse(frame)
	return err
}

func (l *link) Subscribe(fn func(frame []byte)) error {
	if l.notify == nil {
		return session.ErrNotifyUnavailable
	}
	if err := l.notify.EnableNotifications(fn); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	return nil
}

func (l *link) Disconnect() error {
	// A requested disconnect is not a link loss.
	l.watch.Close()
	if err := l.device.Disconnect(); err != nil {
		return fmt.Errorf("ble disconnect %s: %w", l.address, err)
	}
	return nil
}
