package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/session"
)

type recordPublisher struct {
	mu     sync.Mutex
	events []session.Event
	err    error
}

func (p *recordPublisher) PublishEvent(ev session.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind())
	}
	return out
}

func TestPumpEventsDrainsOnShutdown(t *testing.T) {
	events := make(chan session.Event, 4)
	events <- session.Connected{Address: "AA"}
	events <- session.ButtonDown{Button: protocol.B1}
	events <- session.Disconnected{Address: "AA", Requested: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &recordPublisher{}
	pumpEvents(ctx, events, pub, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	got := strings.Join(pub.kinds(), ",")
	if want := "connected,buttondown,disconnected"; got != want {
		t.Errorf("published = %s; want %s", got, want)
	}
}

func TestPumpEventsForwardsUntilCancelled(t *testing.T) {
	events := make(chan session.Event)
	pub := &recordPublisher{err: errors.New("broker down")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pumpEvents(ctx, events, pub, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
		close(done)
	}()

	events <- session.Data{Telemetry: protocol.Telemetry{Shake: 3}}
	events <- session.ButtonUp{Button: protocol.B2}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pumpEvents did not return after cancel")
	}
	if got := strings.Join(pub.kinds(), ","); got != "data,buttonup" {
		t.Errorf("published = %s; want data,buttonup", got)
	}
}

func TestPumpEventsWithoutPublisher(t *testing.T) {
	var buf bytes.Buffer
	events := make(chan session.Event, 1)
	events <- session.ButtonDown{Button: protocol.B3}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pumpEvents(ctx, events, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	if out := buf.String(); !strings.Contains(out, "kind=buttondown") || !strings.Contains(out, "button=b3") {
		t.Errorf("log output = %q; want buttondown b3", out)
	}
}
