// Package scheduler drives every room from a single set of process-wide
// tickers.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pitch/server/config"
	"github.com/pitch/server/internal/game"
)

// RoomSource lists the rooms to drive on each sweep.
type RoomSource interface {
	Rooms() []*game.Room
}

// Mirror receives a room snapshot on every mirror sweep.
type Mirror interface {
	Publish(room *game.Room) error
}

// Option customizes a scheduler.
type Option func(*Scheduler)

// WithMirror enables the mirror sweep.
func WithMirror(m Mirror) Option {
	return func(s *Scheduler) { s.mirror = m }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithIntervals overrides the physics, clock and mirror periods.
func WithIntervals(physics, clock, mirror time.Duration) Option {
	return func(s *Scheduler) {
		s.physicsInterval = physics
		s.clockInterval = clock
		s.mirrorInterval = mirror
	}
}

// Scheduler runs the physics sweep at 60 Hz, the match clock at 1 Hz and
// the optional mirror at 30 Hz. Each sweep fans out over the rooms, bounded
// by GOMAXPROCS. Sweeps never overlap each other.
type Scheduler struct {
	source RoomSource
	mirror Mirror
	limit  int
	logger *slog.Logger

	physicsInterval time.Duration
	clockInterval   time.Duration
	mirrorInterval  time.Duration
}

// New creates a scheduler over source.
func New(source RoomSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:          source,
		limit:           runtime.GOMAXPROCS(0),
		logger:          slog.Default(),
		physicsInterval: time.Second / config.PhysicsTickRate,
		clockInterval:   time.Second / config.ClockTickRate,
		mirrorInterval:  time.Second / config.MirrorTickRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the rooms until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	physics := time.NewTicker(s.physicsInterval)
	defer physics.Stop()

	clock := time.NewTicker(s.clockInterval)
	defer clock.Stop()

	var mirrorC <-chan time.Time
	if s.mirror != nil {
		mirror := time.NewTicker(s.mirrorInterval)
		defer mirror.Stop()
		mirrorC = mirror.C
	}

	s.logger.Info("scheduler started",
		"physics_interval", s.physicsInterval,
		"clock_interval", s.clockInterval,
		"mirror", s.mirror != nil,
		"parallelism", s.limit)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-physics.C:
			s.PhysicsSweep()
		case <-clock.C:
			s.ClockSweep()
		case <-mirrorC:
			s.MirrorSweep()
		}
	}
}

// PhysicsSweep advances every room by one simulation step.
func (s *Scheduler) PhysicsSweep() {
	s.sweep("physics", func(r *game.Room) error {
		r.Tick()
		return nil
	})
}

// ClockSweep advances every room's match clock by one second.
func (s *Scheduler) ClockSweep() {
	s.sweep("clock", func(r *game.Room) error {
		r.TimerTick()
		return nil
	})
}

// MirrorSweep publishes every running match to the mirror.
func (s *Scheduler) MirrorSweep() {
	if s.mirror == nil {
		return
	}
	s.sweep("mirror", s.mirror.Publish)
}

func (s *Scheduler) sweep(name string, op func(*game.Room) error) {
	rooms := s.source.Rooms()
	if len(rooms) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(s.limit)
	for _, room := range rooms {
		g.Go(func() error {
			if err := op(room); err != nil {
				s.logger.Warn("sweep failed", "sweep", name, "room_id", room.ID, "error", err)
				return err
			}
			return nil
		})
	}
	// Failures are logged per room above; one room never stalls the rest.
	_ = g.Wait()
}
