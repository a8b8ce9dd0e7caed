package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"
)

// Advertised name prefixes of PawPrint controllers.
var namePrefixes = []string{"47L", "Paw"}

// coyoteName is a DG-LAB Coyote, which shares the 47L prefix.
const coyoteName = "47L121000"

// ErrNotFound is returned by Find when no PawPrint was seen before the
// context ended.
var ErrNotFound = errors.New("no pawprint device found")

// Match is a single observation of a PawPrint advertisement.
type Match struct {
	Address   string
	RSSI      int16
	LocalName string
	SeenAt    time.Time
}

func isPawPrintName(name string) bool {
	for _, p := range namePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

const stopScanRetry = 50 * time.Millisecond

// stopScanWhenDone calls stopScan once ctx is done, retrying until it
// succeeds or stop closes. StopScan fails until Scan has registered
// itself with the adapter.
func stopScanWhenDone(ctx context.Context, stop <-chan struct{}, stopScan func() error, every time.Duration) {
	select {
	case <-ctx.Done():
	case <-stop:
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for stopScan() != nil {
		select {
		case <-t.C:
		case <-stop:
			return
		}
	}
}

// Find scans until the first PawPrint advertisement or until ctx is done.
func (c *Central) Find(ctx context.Context) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err := c.enable(); err != nil {
		return Match{}, err
	}
	// enable can block on BlueZ; a scan started after ctx ended would
	// never be stopped.
	if err := ctx.Err(); err != nil {
		return Match{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go stopScanWhenDone(ctx, stop, c.adapter.StopScan, stopScanRetry)

	c.logger.Info("ble: scanning started",
		"adapter", c.opts.Adapter,
		"filter_prefixes", strings.Join(namePrefixes, ","),
	)

	var found *Match
	// adapter.Scan blocks until StopScan() or error.
	err := c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		name := r.LocalName()
		if found != nil || !isPawPrintName(name) {
			return
		}
		if name == coyoteName {
			c.logger.Warn("ble: device looks like a Coyote, not a PawPrint", "addr", r.Address.String(), "name", name)
		}
		found = &Match{
			Address:   r.Address.String(),
			RSSI:      r.RSSI,
			LocalName: name,
			SeenAt:    time.Now(),
		}
		_ = a.StopScan()
	})

	if found != nil {
		c.logger.Info("ble: device found",
			"addr", found.Address,
			"name", found.LocalName,
			"rssi", found.RSSI,
		)
		return *found, nil
	}

	// If ctx canceled, the scan was stopped on purpose.
	if ctx.Err() != nil {
		c.logger.Info("ble: scanning stopped (context canceled)")
		return Match{}, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())
	}
	if err != nil {
		return Match{}, fmt.Errorf("ble scan: %w", err)
	}
	return Match{}, ErrNotFound
}
