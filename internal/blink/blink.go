// Package blink alternates the external LED between two colours on a
// fixed period.
//
// Ticks and Stop are ordered by a single mutex: a tick re-checks the
// schedule generation and performs its write while holding it, so once
// Stop (or a new Start) returns, no tick of the old schedule can write.
package blink

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/utils"
)

// ErrInvalidFrequency is returned by Start for a non-positive, non-finite
// or too high frequency.
var ErrInvalidFrequency = errors.New("blink: invalid frequency")

// MinInterval is the shortest half-period accepted.
const MinInterval = time.Millisecond

// Writer sends one frame to the device.
type Writer interface {
	WriteFrame(frame []byte) error
}

// Ticker yields tick times until stop is called.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Option func(*Scheduler)

// WithTicker replaces the time.Ticker based tick source.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(s *Scheduler) { s.newTicker = newTicker }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler owns at most one running blink schedule.
type Scheduler struct {
	w         Writer
	logger    *slog.Logger
	newTicker func(time.Duration) Ticker

	mu     sync.Mutex
	gen    uint64
	active bool
	done   chan struct{}
}

func New(w Writer, opts ...Option) *Scheduler {
	s := &Scheduler{
		w:         w,
		logger:    slog.Default(),
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the half-period for hz: each colour is shown for
// 500/hz milliseconds.
func Interval(hz float64) (time.Duration, error) {
	if math.IsNaN(hz) || math.IsInf(hz, 0) || hz <= 0 {
		return 0, fmt.Errorf("%w: %v hz", ErrInvalidFrequency, hz)
	}
	d := time.Duration(float64(500*time.Millisecond) / hz)
	if d < MinInterval {
		return 0, fmt.Errorf("%w: %v hz gives a %v half-period (min %v)", ErrInvalidFrequency, hz, d, MinInterval)
	}
	return d, nil
}

// Start cancels any running schedule, writes color1 immediately and then
// alternates color2, color1, ... every 500/hz ms. The returned error is
// either ErrInvalidFrequency (nothing started) or the failure of the
// immediate write, in which case the schedule keeps running.
func (s *Scheduler) Start(color1, color2 protocol.Color, hz float64) error {
	interval, err := Interval(hz)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	s.active = true
	s.done = make(chan struct{})

	ticker := s.newTicker(interval)
	go s.run(s.gen, s.done, ticker, color1, color2)

	s.logger.Debug("blink started", "color1", color1, "color2", color2, "hz", hz, "interval", interval)

	frame := protocol.EncodeExternal(color1)
	if err := s.w.WriteFrame(frame); err != nil {
		s.logger.Warn("blink: initial write failed", "frame", utils.FormatFrame(frame), "error", err)
		return err
	}
	return nil
}

// Stop cancels the running schedule. Safe to call when nothing runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Active reports whether a schedule is running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) stopLocked() {
	if !s.active {
		return
	}
	s.gen++
	s.active = false
	close(s.done)
	s.done = nil
	s.logger.Debug("blink stopped")
}

func (s *Scheduler) run(gen uint64, done <-chan struct{}, ticker Ticker, color1, color2 protocol.Color) {
	defer ticker.Stop()

	next, after := color2, color1
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
		}

		if !s.tick(gen, next) {
			return
		}
		next, after = after, next
	}
}

// tick writes one frame unless the schedule was superseded. It reports
// whether the schedule is still current.
func (s *Scheduler) tick(gen uint64, color protocol.Color) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	frame := protocol.EncodeExternal(color)
	if err := s.w.WriteFrame(frame); err != nil {
		// Dropped; the next tick still fires.
		s.logger.Warn("blink: write failed", "frame", utils.FormatFrame(frame), "error", err)
	}
	return true
}
