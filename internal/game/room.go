// Package game implements the core game logic: physics, players, rooms and
// the match lifecycle.
package game

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pitch/server/config"
	"github.com/pitch/server/internal/network"
)

// Room represents one match: its own field, players, ball, score and clock.
//
// Thread Safety:
// Every piece of room state is guarded by mu. The scheduler's physics and
// clock sweeps, input handlers and the deferred ball reset all take the lock,
// so a room is only ever mutated by one of them at a time. Rooms never touch
// each other's state.
//
// IMPORTANT: Methods ending in "Unlocked" expect the caller to already
// hold the lock.
type Room struct {
	mu sync.Mutex

	ID     string
	width  float64
	height float64
	cfg    config.GameConfig

	players map[string]*Player
	order   []string // join order; the tick visits players in this order
	red     []string
	blue    []string
	ball    Ball
	score   network.Score

	matchTime         int
	isPlaying         bool
	waitingForRestart bool
	playersReady      map[string]struct{}

	lastGoalTime        time.Time
	ballResetInProgress bool
	resetTimer          Timer
	resetGen            uint64 // invalidates reset callbacks that lost a race with Stop

	closed    bool
	tickCount uint64

	physics  *Physics
	corners  []Corner
	protocol *network.Protocol
	clock    Clock
	rng      *rand.Rand
	logger   *slog.Logger
}

// Option customizes a room.
type Option func(*Room)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(r *Room) { r.clock = c }
}

// WithRand sets the random source used for ball resets.
func WithRand(rng *rand.Rand) Option {
	return func(r *Room) { r.rng = rng }
}

// WithLogger sets the room logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Room) { r.logger = l }
}

// NewRoom creates a new room with the given ID. The room does nothing until
// the scheduler drives it.
func NewRoom(id string, cfg config.GameConfig, opts ...Option) *Room {
	r := &Room{
		ID:           id,
		width:        cfg.FieldWidth,
		height:       cfg.FieldHeight,
		cfg:          cfg,
		players:      make(map[string]*Player),
		red:          []string{},
		blue:         []string{},
		matchTime:    cfg.MatchDuration,
		playersReady: make(map[string]struct{}),
		physics:      NewPhysics(cfg),
		corners:      CornerDefinitions(cfg.FieldWidth, cfg.FieldHeight, cfg.CornerSize),
		protocol:     network.NewProtocol(),
		clock:        SystemClock{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.logger = r.logger.With("room_id", id)

	r.ball = Ball{
		X:      r.width / 2,
		Y:      r.height / 2,
		Radius: cfg.BallRadius,
	}
	return r
}

// AddPlayer adds a connection to the room and puts it on the smaller team
// (red on ties). A connection id that is already present is treated as a
// reconnect: the connection is replaced and the team kept.
func (r *Room) AddPlayer(id string, conn PlayerConnection) (Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRoomClosed
	}

	if p, ok := r.players[id]; ok {
		p.Connection = conn
		r.sendJoinInfoUnlocked(p)
		r.logger.Info("player reconnected", "conn_id", id, "team", p.Team)
		return p.Team, nil
	}

	if len(r.players) >= r.cfg.MaxPlayersPerRoom {
		return "", ErrRoomFull
	}

	team := TeamRed
	if len(r.red) > len(r.blue) {
		team = TeamBlue
	}

	p := NewPlayer(id, team, conn, r.clock.Now())
	p.MoveToSpot(r.width, r.height)

	r.players[id] = p
	r.order = append(r.order, id)
	roster := r.rosterUnlocked(team)
	*roster = append(*roster, id)

	r.sendJoinInfoUnlocked(p)

	r.logger.Info("player joined", "conn_id", id, "team", team, "players", len(r.players))

	r.checkRestartConditionsUnlocked()

	return team, nil
}

// RemovePlayer removes a player, tells the others and re-evaluates the match.
// Safe to call with unknown ids.
func (r *Room) RemovePlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return false
	}

	roster := r.rosterUnlocked(p.Team)
	*roster = without(*roster, id)
	r.order = without(r.order, id)
	delete(r.players, id)
	delete(r.playersReady, id)

	r.logger.Info("player left",
		"conn_id", id,
		"players", len(r.players),
		"session", r.clock.Now().Sub(p.JoinedAt))

	if r.closed {
		return true
	}

	r.broadcastUnlocked(network.PlayerDisconnected{
		PlayerID:  id,
		GameState: r.snapshotUnlocked(),
	})

	r.checkRestartConditionsUnlocked()

	return true
}

// HandleInput records a player's intent for the next tick. Input outside a
// match or from unknown connections is ignored.
func (r *Room) HandleInput(id string, in Input) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.isPlaying {
		return
	}
	if p, ok := r.players[id]; ok {
		p.Input = in
	}
}

// Tick runs one fixed simulation step. It is a no-op unless a match is being
// played.
func (r *Room) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.isPlaying {
		return
	}
	r.tickCount++

	for _, id := range r.order {
		r.physics.MovePlayer(r.players[id], r.width, r.height)
	}

	for _, id := range r.order {
		r.physics.CollideBall(r.players[id], &r.ball)
	}

	r.physics.IntegrateBall(&r.ball)
	r.physics.ReflectWalls(&r.ball, r.width, r.height)
	r.physics.EnforceCorners(&r.ball, r.corners)

	r.detectGoalUnlocked()

	// Wall reflection already clamps x, so this only catches states the
	// steps above failed to correct.
	if !r.ballResetInProgress && (r.ball.X < 0 || r.ball.X > r.width) {
		r.logger.Warn("ball left the field, resetting", "x", r.ball.X, "y", r.ball.Y)
		r.resetBallUnlocked()
	}

	r.broadcastUnlocked(r.updateUnlocked())
}

// TimerTick advances the match clock by one second.
func (r *Room) TimerTick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.isPlaying {
		return
	}

	r.matchTime--
	if r.matchTime < 0 {
		r.matchTime = 0
	}

	r.broadcastUnlocked(network.TimerUpdate{MatchTime: r.matchTime})

	if r.matchTime == 0 {
		r.endMatchUnlocked()
	}
}

// detectGoalUnlocked scores at most one goal per cooldown window.
func (r *Room) detectGoalUnlocked() {
	if r.ballResetInProgress {
		return
	}
	now := r.clock.Now()
	if now.Sub(r.lastGoalTime) <= r.cfg.GoalCooldown {
		return
	}

	mid := r.height / 2
	half := r.cfg.GoalHeight / 2
	if r.ball.Y <= mid-half || r.ball.Y >= mid+half {
		return
	}

	switch {
	case r.ball.X < r.cfg.GoalWidth:
		r.scoreGoalUnlocked(TeamBlue, now)
	case r.ball.X > r.width-r.cfg.GoalWidth:
		r.scoreGoalUnlocked(TeamRed, now)
	}
}

func (r *Room) scoreGoalUnlocked(team Team, now time.Time) {
	if team == TeamRed {
		r.score.Red++
	} else {
		r.score.Blue++
	}
	r.lastGoalTime = now
	r.ballResetInProgress = true

	r.logger.Debug("goal", "team", team, "red", r.score.Red, "blue", r.score.Blue)

	r.broadcastUnlocked(network.GoalScored{Team: string(team)})
	r.scheduleBallResetUnlocked()
}

// scheduleBallResetUnlocked resets the ball once the goal cooldown elapses.
// The callback runs against whatever the room looks like at fire time and
// does nothing if the room was stopped or the reset was cancelled.
func (r *Room) scheduleBallResetUnlocked() {
	r.cancelBallResetUnlocked()
	gen := r.resetGen

	r.resetTimer = r.clock.AfterFunc(r.cfg.GoalCooldown, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.closed || gen != r.resetGen {
			return
		}
		r.resetTimer = nil
		r.resetBallUnlocked()
	})
}

func (r *Room) cancelBallResetUnlocked() {
	r.resetGen++
	if r.resetTimer != nil {
		r.resetTimer.Stop()
		r.resetTimer = nil
	}
}

// resetBallUnlocked drops a still ball at a random point of the central
// third of the field.
func (r *Room) resetBallUnlocked() {
	minX, maxX := centralThird(r.width)
	minY, maxY := centralThird(r.height)

	r.ball = Ball{
		X:      minX + r.rng.Float64()*(maxX-minX),
		Y:      minY + r.rng.Float64()*(maxY-minY),
		Radius: r.cfg.BallRadius,
	}
	r.ballResetInProgress = false

	r.broadcastUnlocked(network.BallReset{Ball: r.ball.State()})
}

func centralThird(dim float64) (float64, float64) {
	third := dim / 3
	return dim/2 - third/2, dim/2 + third/2
}

// Stop retires the room: pending ball resets are cancelled and every later
// tick, timer or input becomes a no-op. Safe to call multiple times.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.isPlaying = false
	r.cancelBallResetUnlocked()

	r.logger.Info("room stopped", "ticks", r.tickCount)
}

// Snapshot returns the read-only projection of the room sent to clients.
func (r *Room) Snapshot() network.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotUnlocked()
}

func (r *Room) snapshotUnlocked() network.GameState {
	return network.GameState{
		Width:     r.width,
		Height:    r.height,
		Players:   r.playerStatesUnlocked(),
		Ball:      r.ball.State(),
		Score:     r.score,
		Teams:     r.teamsUnlocked(),
		MatchTime: r.matchTime,
		IsPlaying: r.isPlaying,
		RoomID:    r.ID,
	}
}

func (r *Room) updateUnlocked() network.Update {
	return network.Update{
		Players:   r.playerStatesUnlocked(),
		Ball:      r.ball.State(),
		Score:     r.score,
		MatchTime: r.matchTime,
		IsPlaying: r.isPlaying,
		Teams:     r.teamsUnlocked(),
		RoomID:    r.ID,
	}
}

func (r *Room) playerStatesUnlocked() map[string]network.PlayerState {
	states := make(map[string]network.PlayerState, len(r.players))
	for id, p := range r.players {
		states[id] = p.State()
	}
	return states
}

func (r *Room) teamsUnlocked() network.Teams {
	return network.Teams{
		Red:  append([]string{}, r.red...),
		Blue: append([]string{}, r.blue...),
	}
}

// RoomInfo is a point-in-time summary of a room for stats and directories.
type RoomInfo struct {
	ID                string
	Players           int
	Capacity          int
	IsPlaying         bool
	WaitingForRestart bool
	MatchTime         int
	Score             network.Score
}

// Info summarizes the room.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RoomInfo{
		ID:                r.ID,
		Players:           len(r.players),
		Capacity:          r.cfg.MaxPlayersPerRoom,
		IsPlaying:         r.isPlaying,
		WaitingForRestart: r.waitingForRestart,
		MatchTime:         r.matchTime,
		Score:             r.score,
	}
}

// GetPlayerCount returns the current number of players in the room.
func (r *Room) GetPlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// IsEmpty returns true if the room has no players.
func (r *Room) IsEmpty() bool {
	return r.GetPlayerCount() == 0
}

// IsFull reports whether the room is at capacity.
func (r *Room) IsFull() bool {
	return r.GetPlayerCount() >= r.cfg.MaxPlayersPerRoom
}

// Capacity is the maximum number of players.
func (r *Room) Capacity() int {
	return r.cfg.MaxPlayersPerRoom
}

// IsClosed reports whether Stop has been called.
func (r *Room) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// broadcastUnlocked sends a message to every player in the room.
// IMPORTANT: Caller must hold the room lock.
func (r *Room) broadcastUnlocked(msg network.Message) {
	data := r.protocol.MustEncode(msg)
	for _, id := range r.order {
		p := r.players[id]
		if err := p.Connection.Send(data); err != nil {
			// Log but don't disconnect - connection cleanup handles that
			r.logger.Debug("send failed", "conn_id", id, "event", msg.Event(), "error", err)
		}
	}
}

// sendUnlocked sends a message to one player.
// IMPORTANT: Caller must hold the room lock.
func (r *Room) sendUnlocked(p *Player, msg network.Message) {
	if err := p.Connection.Send(r.protocol.MustEncode(msg)); err != nil {
		r.logger.Debug("send failed", "conn_id", p.ID, "event", msg.Event(), "error", err)
	}
}

func (r *Room) sendJoinInfoUnlocked(p *Player) {
	r.sendUnlocked(p, network.RoomAssigned{
		RoomID:   r.ID,
		Capacity: r.cfg.MaxPlayersPerRoom,
		Players:  len(r.players),
	})
	r.sendUnlocked(p, network.Init{
		Team:      string(p.Team),
		GameState: r.snapshotUnlocked(),
		CanMove:   r.isPlaying && len(r.red) > 0 && len(r.blue) > 0,
		RoomID:    r.ID,
	})
}

func (r *Room) rosterUnlocked(t Team) *[]string {
	if t == TeamRed {
		return &r.red
	}
	return &r.blue
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Error definitions
var (
	ErrRoomFull   = &RoomError{message: "room is full"}
	ErrRoomClosed = &RoomError{message: "room is closed"}
)

// RoomError represents an error related to room operations.
type RoomError struct {
	message string
}

func (e *RoomError) Error() string {
	return e.message
}
