package game

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/pitch/server/config"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock. Deferred calls run inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeConn records every frame sent to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error       { return nil }
func (c *fakeConn) RemoteAddr() string { return "test" }

func (c *fakeConn) decoded(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) events(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, f := range c.decoded(t) {
		names = append(names, f.Event)
	}
	return names
}

func (c *fakeConn) count(t *testing.T, event string) int {
	t.Helper()
	n := 0
	for _, f := range c.decoded(t) {
		if f.Event == event {
			n++
		}
	}
	return n
}

// last decodes the payload of the most recent frame of the given event.
func (c *fakeConn) last(t *testing.T, event string, v any) bool {
	t.Helper()
	frames := c.decoded(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			require.NoError(t, json.Unmarshal(frames[i].Data, v))
			return true
		}
	}
	return false
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoom(t *testing.T) (*Room, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	r := NewRoom("test-room", config.DefaultGameConfig(),
		WithClock(clock),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithLogger(discardLogger()),
	)
	return r, clock
}

// join adds players with fresh fake connections in order.
func join(t *testing.T, r *Room, ids ...string) map[string]*fakeConn {
	t.Helper()
	conns := make(map[string]*fakeConn, len(ids))
	for _, id := range ids {
		c := &fakeConn{}
		_, err := r.AddPlayer(id, c)
		require.NoError(t, err)
		conns[id] = c
	}
	return conns
}

func placeBall(r *Room, x, y, vx, vy float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ball.X, r.ball.Y = x, y
	r.ball.SpeedX, r.ball.SpeedY = vx, vy
}

func ballOf(r *Room) Ball {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ball
}

func assertTeamsBalanced(t *testing.T, r *Room) {
	t.Helper()
	s := r.Snapshot()
	diff := len(s.Teams.Red) - len(s.Teams.Blue)
	require.LessOrEqual(t, diff, 1)
	require.GreaterOrEqual(t, diff, -1)
}
