package blink

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawprint-gateway/internal/protocol"
)

type recordWriter struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	wrote  chan []byte
}

func newRecordWriter() *recordWriter {
	return &recordWriter{wrote: make(chan []byte, 64)}
}

func (w *recordWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	w.frames = append(w.frames, frame)
	err := w.err
	w.mu.Unlock()
	select {
	case w.wrote <- frame:
	default:
	}
	return err
}

func (w *recordWriter) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *recordWriter) snapshot() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.frames...)
}

func (w *recordWriter) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-w.wrote:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a write")
		return nil
	}
}

type manualTicker struct {
	interval time.Duration
	c        chan time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopOnce.Do(func() { close(m.stopped) }) }

// fire delivers one tick, giving up if the schedule stops first.
func (m *manualTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case m.c <- time.Now():
	case <-m.stopped:
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

type manualClock struct {
	tickers chan *manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{tickers: make(chan *manualTicker, 8)}
}

func (c *manualClock) newTicker(d time.Duration) Ticker {
	tk := &manualTicker{interval: d, c: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers <- tk
	return tk
}

func (c *manualClock) ticker(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-c.tickers:
		return tk
	case <-time.After(time.Second):
		t.Fatal("no ticker created")
		return nil
	}
}

func TestInterval(t *testing.T) {
	d, err := Interval(2)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = Interval(0.5)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	for _, hz := range []float64{0, -1, math.NaN(), math.Inf(1), 1e6} {
		_, err := Interval(hz)
		assert.ErrorIs(t, err, ErrInvalidFrequency, "hz=%v", hz)
	}
}

func TestStart_AlternatesStartingWithSecondColor(t *testing.T) {
	w := newRecordWriter()
	clk := newManualClock()
	s := New(w, WithTicker(clk.newTicker))

	require.NoError(t, s.Start(protocol.ColorRed, protocol.ColorBlue, 2))
	tk := clk.ticker(t)
	assert.Equal(t, 250*time.Millisecond, tk.interval)
	assert.Equal(t, []byte{0x70, 0x02}, w.next(t))
	assert.True(t, s.Active())

	want := [][]byte{{0x70, 0x04}, {0x70, 0x02}, {0x70, 0x04}, {0x70, 0x02}}
	for _, f := range want {
		tk.fire(t)
		assert.Equal(t, f, w.next(t))
	}
	s.Stop()
}

func TestStop_NoWritesAfterReturn(t *testing.T) {
	w := newRecordWriter()
	clk := newManualClock()
	s := New(w, WithTicker(clk.newTicker))

	require.NoError(t, s.Start(protocol.ColorGreen, protocol.ColorOff, 4))
	tk := clk.ticker(t)
	w.next(t)
	tk.fire(t)
	w.next(t)

	s.Stop()
	assert.False(t, s.Active())
	before := len(w.snapshot())

	tk.fire(t)
	select {
	case <-tk.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped")
	}
	assert.Len(t, w.snapshot(), before)

	// idempotent
	s.Stop()
	s.Stop()
}

func TestStop_WhenIdle(t *testing.T) {
	s := New(newRecordWriter())
	s.Stop()
	assert.False(t, s.Active())
}

func TestStart_ReplacesRunningSchedule(t *testing.T) {
	w := newRecordWriter()
	clk := newManualClock()
	s := New(w, WithTicker(clk.newTicker))

	require.NoError(t, s.Start(protocol.ColorRed, protocol.ColorBlue, 1))
	first := clk.ticker(t)
	w.next(t)

	require.NoError(t, s.Start(protocol.ColorCyan, protocol.ColorViolet, 10))
	second := clk.ticker(t)
	assert.Equal(t, []byte{0x70, 0x05}, w.next(t))
	assert.Equal(t, 50*time.Millisecond, second.interval)

	select {
	case <-first.stopped:
	case <-time.After(time.Second):
		t.Fatal("first schedule still running")
	}

	second.fire(t)
	assert.Equal(t, []byte{0x70, 0x03}, w.next(t))
	s.Stop()
}

func TestStart_InvalidFrequencyKeepsRunningSchedule(t *testing.T) {
	w := newRecordWriter()
	clk := newManualClock()
	s := New(w, WithTicker(clk.newTicker))

	require.NoError(t, s.Start(protocol.ColorRed, protocol.ColorBlue, 1))
	clk.ticker(t)
	w.next(t)

	err := s.Start(protocol.ColorRed, protocol.ColorBlue, 0)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
	assert.True(t, s.Active())
	assert.Len(t, w.snapshot(), 1)
	s.Stop()
}

func TestTick_WriteFailureDoesNotStopSchedule(t *testing.T) {
	w := newRecordWriter()
	clk := newManualClock()
	s := New(w, WithTicker(clk.newTicker))

	boom := errors.New("gatt write failed")
	w.setErr(boom)
	err := s.Start(protocol.ColorYellow, protocol.ColorOff, 2)
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Active())
	tk := clk.ticker(t)
	w.next(t)

	tk.fire(t)
	assert.Equal(t, []byte{0x70, 0x00}, w.next(t))
	w.setErr(nil)
	tk.fire(t)
	assert.Equal(t, []byte{0x70, 0x01}, w.next(t))
	s.Stop()
}

func TestScheduler_RealTicker(t *testing.T) {
	w := newRecordWriter()
	s := New(w)

	require.NoError(t, s.Start(protocol.ColorRed, protocol.ColorBlue, 100))
	for i := 0; i < 4; i++ {
		w.next(t)
	}
	s.Stop()
	n := len(w.snapshot())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, w.snapshot(), n)

	frames := w.snapshot()
	for i, f := range frames {
		want := protocol.ColorRed
		if i%2 == 1 {
			want = protocol.ColorBlue
		}
		assert.Equal(t, protocol.EncodeExternal(want), f, "frame %d", i)
	}
}
