// Package session drives one PawPrint device: the connect/disconnect
// state machine, LED and data-mode commands, the blink schedule and the
// decoding of notification frames into events.
//
// A Session is an actor. Run owns every piece of mutable state; the
// exported methods hand closures to it and wait for the result, and
// transport callbacks only enqueue frames or link-loss reports.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pawprint-gateway/internal/blink"
	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/utils"
)

const (
	defaultEventBuffer = 64
	defaultFrameQueue  = 64
)

type Options struct {
	// EventBuffer is the capacity of the Events channel. Events are
	// dropped, not blocked on, once it is full.
	EventBuffer int
	// FrameQueue bounds inbound frames waiting for the actor.
	FrameQueue int
	Logger     *slog.Logger
	// BlinkOptions are passed to every blink.Scheduler the session creates.
	BlinkOptions []blink.Option
}

type inbound struct {
	linkID uint64
	frame  []byte
}

type Session struct {
	dialer    Dialer
	logger    *slog.Logger
	blinkOpts []blink.Option

	ops    chan func()
	frames chan inbound
	lost   chan uint64
	events chan Event
	done   chan struct{}

	// Owned by Run.
	state       State
	address     string
	link        Link
	linkID      uint64
	writer      *linkWriter
	blink       *blink.Scheduler
	blinkCfg    Blink
	decoder     protocol.Decoder
	internal    protocol.Color
	external    protocol.Color
	dataEnabled bool
	telemetry   bool
	shake       float64
}

func New(dialer Dialer, opts Options) *Session {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.FrameQueue <= 0 {
		opts.FrameQueue = defaultFrameQueue
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		dialer:    dialer,
		logger:    opts.Logger,
		blinkOpts: append([]blink.Option{blink.WithLogger(opts.Logger)}, opts.BlinkOptions...),
		ops:       make(chan func()),
		frames:    make(chan inbound, opts.FrameQueue),
		lost:      make(chan uint64),
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
		state:     StateDisconnected,
		internal:  protocol.ColorYellow,
		external:  protocol.ColorOff,
	}
}

// Events delivers session events. The channel is never closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Run processes commands, frames and link-loss reports until ctx is
// done. Disconnect before cancelling ctx to turn the LEDs off; Run only
// stops the blink schedule on exit.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			if s.blink != nil {
				s.blink.Stop()
			}
			return ctx.Err()
		case op := <-s.ops:
			op()
		case in := <-s.frames:
			s.handleFrame(in)
		case id := <-s.lost:
			s.handleLinkLost(id)
		}
	}
}

// do runs fn on the actor and returns its error.
func (s *Session) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	op := func() { errCh <- fn() }
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	return <-errCh
}

// Connect dials address and, once the service is discovered, resets the
// session state and emits Connected. A missing notify characteristic
// only disables telemetry.
func (s *Session) Connect(ctx context.Context, address string) error {
	if address == "" {
		return ErrNoDeviceSelected
	}

	var id uint64
	err := s.do(ctx, func() error {
		if s.state != StateDisconnected {
			return fmt.Errorf("%w: connect while %s", ErrInvalidState, s.state)
		}
		s.state = StateConnecting
		s.address = address
		s.linkID++
		id = s.linkID
		s.logger.Info("connecting", "address", address)
		return nil
	})
	if err != nil {
		return err
	}

	link, dialErr := s.dialer.Dial(ctx, address, func() { s.reportLinkLost(id) })

	// The outcome must be recorded even if ctx was cancelled meanwhile,
	// otherwise the session would stay in Connecting.
	recorded := false
	err = s.do(context.WithoutCancel(ctx), func() error {
		recorded = true
		current := s.linkID == id && s.state == StateConnecting
		if dialErr != nil {
			if current {
				s.state = StateDisconnected
				s.address = ""
			}
			s.logger.Warn("connect failed", "address", address, "error", dialErr)
			return fmt.Errorf("connect %s: %w", address, dialErr)
		}
		if !current {
			// Link dropped while dialing.
			if err := link.Disconnect(); err != nil {
				s.logger.Debug("disconnect stale link", "address", address, "error", err)
			}
			return fmt.Errorf("connect %s: %w: link lost during connect", address, ErrInvalidState)
		}
		s.establish(id, link)
		return nil
	})
	if !recorded && dialErr == nil {
		// Run exited while dialing; nobody owns the link.
		if dErr := link.Disconnect(); dErr != nil {
			s.logger.Debug("disconnect orphaned link", "address", address, "error", dErr)
		}
	}
	return err
}

func (s *Session) establish(id uint64, link Link) {
	s.link = link
	s.writer = newLinkWriter(link, s.logger)
	s.blink = blink.New(s.writer, s.blinkOpts...)
	s.resetState()

	err := link.Subscribe(func(frame []byte) { s.enqueueFrame(id, frame) })
	s.telemetry = err == nil
	switch {
	case errors.Is(err, ErrNotifyUnavailable):
		s.logger.Warn("notify characteristic missing; telemetry disabled", "address", s.address)
	case err != nil:
		s.logger.Warn("subscribe failed; telemetry disabled", "address", s.address, "error", err)
	}

	s.state = StateConnected
	s.logger.Info("connected", "address", s.address, "telemetry", s.telemetry)
	s.emit(Connected{Address: s.address})
}

// Disconnect turns data mode and the external LED off, cancels any blink
// and closes the link. The LED steps are best effort; their failures are
// logged and never prevent the disconnect.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch s.state {
		case StateConnected:
		case StateDisconnected:
			return ErrNotConnected
		default:
			return fmt.Errorf("%w: disconnect while %s", ErrInvalidState, s.state)
		}
		s.state = StateDisconnecting
		address := s.address
		s.logger.Info("disconnecting", "address", address)

		s.dataEnabled = false
		if err := s.write(protocol.EncodeInternal(s.internal, false)); err != nil {
			s.logger.Warn("teardown: stop data failed", "address", address, "error", err)
		}
		s.blink.Stop()
		s.external = protocol.ColorOff
		if err := s.write(protocol.EncodeExternal(protocol.ColorOff)); err != nil {
			s.logger.Warn("teardown: external led off failed", "address", address, "error", err)
		}

		err := s.link.Disconnect()
		s.teardown()
		s.emit(Disconnected{Address: address, Requested: true})
		if err != nil {
			s.logger.Warn("transport disconnect failed", "address", address, "error", err)
			return fmt.Errorf("disconnect %s: %w", address, err)
		}
		s.logger.Info("disconnected", "address", address)
		return nil
	})
}

// teardown drops the link. Bumping linkID makes late frames and
// link-loss reports from it no-ops.
func (s *Session) teardown() {
	s.state = StateDisconnected
	s.link = nil
	s.writer = nil
	s.blink = nil
	s.address = ""
	s.linkID++
	s.resetState()
}

// resetState restores the defaults a fresh connection starts from.
func (s *Session) resetState() {
	s.blinkCfg = Blink{}
	s.decoder.Reset()
	s.internal = protocol.ColorYellow
	s.external = protocol.ColorOff
	s.dataEnabled = false
	s.telemetry = false
	s.shake = 0
}

func (s *Session) reportLinkLost(id uint64) {
	go func() {
		select {
		case s.lost <- id:
		case <-s.done:
		}
	}()
}

func (s *Session) handleLinkLost(id uint64) {
	if id != s.linkID {
		return
	}
	switch s.state {
	case StateConnecting, StateConnected:
	default:
		return
	}
	address := s.address
	if s.blink != nil {
		s.blink.Stop()
	}
	s.logger.Warn("link lost", "address", address, "state", s.state)
	s.teardown()
	s.emit(Disconnected{Address: address})
}

func (s *Session) enqueueFrame(id uint64, frame []byte) {
	in := inbound{linkID: id, frame: append([]byte(nil), frame...)}
	select {
	case s.frames <- in:
	default:
		s.logger.Warn("frame queue full; dropping frame", "frame", utils.FormatFrame(frame))
	}
}

func (s *Session) handleFrame(in inbound) {
	if in.linkID != s.linkID || s.state != StateConnected {
		return
	}
	u := s.decoder.Decode(in.frame)
	if u.Empty() {
		s.logger.Debug("rx ignored", "frame", utils.FormatFrame(in.frame))
		return
	}
	for _, e := range u.Edges {
		if e.Pressed {
			s.emit(ButtonDown{Button: e.Button})
		} else {
			s.emit(ButtonUp{Button: e.Button})
		}
	}
	if u.Telemetry != nil {
		s.shake = u.Telemetry.Shake
		s.emit(Data{Telemetry: *u.Telemetry})
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full; dropping event", "kind", ev.Kind())
	}
}

func (s *Session) write(frame []byte) error {
	return s.writer.WriteFrame(frame)
}

func (s *Session) connected() error {
	if s.state != StateConnected {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, s.state)
	}
	return nil
}

// SetInternalColor sets the internal LED, re-encoding the current data
// flag.
func (s *Session) SetInternalColor(ctx context.Context, color protocol.Color) error {
	return s.do(ctx, func() error {
		if err := s.connected(); err != nil {
			return err
		}
		s.internal = color
		return s.sendInternal("set internal color")
	})
}

// SetExternalColor cancels any blink, then sets the external LED.
func (s *Session) SetExternalColor(ctx context.Context, color protocol.Color) error {
	return s.do(ctx, func() error {
		if err := s.connected(); err != nil {
			return err
		}
		s.blink.Stop()
		s.blinkCfg = Blink{}
		s.external = color
		if err := s.write(protocol.EncodeExternal(color)); err != nil {
			s.logger.Warn("set external color failed", "color", color, "error", err)
			return fmt.Errorf("set external color: %w", err)
		}
		return nil
	})
}

// StartData enables sensor notifications by re-sending the internal
// colour with the data flag set.
func (s *Session) StartData(ctx context.Context) error {
	return s.setData(ctx, true)
}

func (s *Session) StopData(ctx context.Context) error {
	return s.setData(ctx, false)
}

func (s *Session) setData(ctx context.Context, enabled bool) error {
	return s.do(ctx, func() error {
		if err := s.connected(); err != nil {
			return err
		}
		s.dataEnabled = enabled
		return s.sendInternal("set data mode")
	})
}

func (s *Session) sendInternal(op string) error {
	if err := s.write(protocol.EncodeInternal(s.internal, s.dataEnabled)); err != nil {
		s.logger.Warn(op+" failed", "color", s.internal, "data", s.dataEnabled, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// BlinkExternal alternates the external LED between color1 and color2,
// hz full cycles per second. It replaces any static external colour or
// running blink.
func (s *Session) BlinkExternal(ctx context.Context, color1, color2 protocol.Color, hz float64) error {
	return s.do(ctx, func() error {
		if err := s.connected(); err != nil {
			return err
		}
		err := s.blink.Start(color1, color2, hz)
		if errors.Is(err, blink.ErrInvalidFrequency) {
			return err
		}
		s.blinkCfg = Blink{Color1: color1, Color2: color2, Hz: hz}
		if err != nil {
			return fmt.Errorf("blink external: %w", err)
		}
		return nil
	})
}

// StopBlink cancels the blink schedule. The external LED keeps the
// colour of the last tick.
func (s *Session) StopBlink(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.connected(); err != nil {
			return err
		}
		s.blink.Stop()
		s.blinkCfg = Blink{}
		return nil
	})
}

// Status returns a snapshot of the session. Valid in every state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() error {
		st = Status{
			State:         s.state,
			Address:       s.address,
			InternalColor: s.internal,
			DataEnabled:   s.dataEnabled,
			Telemetry:     s.telemetry,
			Accel:         s.decoder.Sample(),
			Buttons:       s.decoder.Buttons(),
			Shake:         s.shake,
		}
		if s.blink != nil && s.blink.Active() {
			b := s.blinkCfg
			st.Blink = &b
		} else {
			ext := s.external
			st.ExternalColor = &ext
		}
		return nil
	})
	return st, err
}

// Tilt derives the orientation from the last accelerometer sample.
func (s *Session) Tilt(ctx context.Context) (protocol.Tilt, error) {
	var t protocol.Tilt
	err := s.do(ctx, func() error {
		t = protocol.TiltOf(s.decoder.Sample())
		return nil
	})
	return t, err
}
