package game

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pitch/server/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_NewRoom(t *testing.T) {
	r, _ := newTestRoom(t)

	s := r.Snapshot()
	assert.Equal(t, "test-room", s.RoomID)
	assert.Equal(t, 400.0, s.Ball.X)
	assert.Equal(t, 300.0, s.Ball.Y)
	assert.Equal(t, 60, s.MatchTime)
	assert.False(t, s.IsPlaying)
	assert.NotNil(t, s.Teams.Red)
	assert.NotNil(t, s.Teams.Blue)
	assert.True(t, r.IsEmpty())
	assert.Equal(t, 6, r.Capacity())
}

func TestRoom_FirstPlayerWaits(t *testing.T) {
	r, _ := newTestRoom(t)
	conns := join(t, r, "a")

	assert.Equal(t, []string{
		network.EventRoomAssigned,
		network.EventInit,
		network.EventWaitingForPlayers,
	}, conns["a"].events(t))

	var init network.Init
	require.True(t, conns["a"].last(t, network.EventInit, &init))
	assert.Equal(t, network.TeamRed, init.Team)
	assert.False(t, init.CanMove)
	assert.Equal(t, "test-room", init.RoomID)

	var waiting network.WaitingForPlayers
	require.True(t, conns["a"].last(t, network.EventWaitingForPlayers, &waiting))
	assert.Equal(t, 1, waiting.RedCount)
	assert.Equal(t, 0, waiting.BlueCount)
	assert.False(t, r.IsPlaying())
}

func TestRoom_SecondPlayerStartsMatch(t *testing.T) {
	r, _ := newTestRoom(t)
	conns := join(t, r, "a", "b")

	assert.Equal(t, []string{
		network.EventRoomAssigned,
		network.EventInit,
		network.EventBallReset,
		network.EventCleanPreviousMatch,
		network.EventMatchStart,
	}, conns["b"].events(t))

	var start network.MatchStart
	require.True(t, conns["a"].last(t, network.EventMatchStart, &start))
	assert.True(t, start.CanMove)
	assert.True(t, start.GameState.IsPlaying)
	assert.Equal(t, []string{"a"}, start.GameState.Teams.Red)
	assert.Equal(t, []string{"b"}, start.GameState.Teams.Blue)
	assert.Equal(t, network.PlayerState{X: 100, Y: 300, Team: network.TeamRed}, start.GameState.Players["a"])
	assert.Equal(t, network.PlayerState{X: 700, Y: 300, Team: network.TeamBlue}, start.GameState.Players["b"])
	assert.True(t, r.IsPlaying())
}

func TestRoom_TeamAssignmentAlternates(t *testing.T) {
	r, _ := newTestRoom(t)

	want := []Team{TeamRed, TeamBlue, TeamRed, TeamBlue, TeamRed, TeamBlue}
	for i, team := range want {
		got, err := r.AddPlayer(string(rune('a'+i)), &fakeConn{})
		require.NoError(t, err)
		assert.Equal(t, team, got)
		assertTeamsBalanced(t, r)
	}
}

func TestRoom_Capacity(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "p1", "p2", "p3", "p4", "p5", "p6")
	require.True(t, r.IsFull())

	_, err := r.AddPlayer("p7", &fakeConn{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRoomFull))
	assert.Equal(t, 6, r.GetPlayerCount())

	t.Run("reconnect is not a new player", func(t *testing.T) {
		c := &fakeConn{}
		team, err := r.AddPlayer("p2", c)
		require.NoError(t, err)
		assert.Equal(t, TeamBlue, team)
		assert.Equal(t, 6, r.GetPlayerCount())

		var init network.Init
		require.True(t, c.last(t, network.EventInit, &init))
		assert.True(t, init.CanMove)
		assert.Equal(t, network.TeamBlue, init.Team)
	})
}

func TestRoom_RemovePlayer(t *testing.T) {
	r, _ := newTestRoom(t)
	conns := join(t, r, "a", "b")
	conns["a"].reset()

	assert.True(t, r.RemovePlayer("b"))
	assert.False(t, r.RemovePlayer("b"))
	assert.False(t, r.RemovePlayer("nobody"))

	assert.Equal(t, []string{
		network.EventPlayerDisconnected,
		network.EventWaitingForPlayers,
	}, conns["a"].events(t))

	var gone network.PlayerDisconnected
	require.True(t, conns["a"].last(t, network.EventPlayerDisconnected, &gone))
	assert.Equal(t, "b", gone.PlayerID)
	assert.NotContains(t, gone.GameState.Players, "b")

	assert.False(t, r.IsPlaying())
	assert.Equal(t, 1, r.GetPlayerCount())
	assert.Zero(t, conns["b"].count(t, network.EventPlayerDisconnected))
}

func TestRoom_JoinTimeSurvivesReconnect(t *testing.T) {
	r, clock := newTestRoom(t)
	start := clock.Now()

	join(t, r, "a")
	clock.Advance(3 * time.Second)
	join(t, r, "b")
	clock.Advance(time.Second)
	_, err := r.AddPlayer("a", &fakeConn{})
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, start, r.players["a"].JoinedAt)
	assert.Equal(t, start.Add(3*time.Second), r.players["b"].JoinedAt)
}

func TestRoom_RebalanceAfterLeave(t *testing.T) {
	r, _ := newTestRoom(t)
	conns := join(t, r, "a", "b", "c", "d")

	r.RemovePlayer("b")
	assertTeamsBalanced(t, r)
	assert.Zero(t, conns["c"].count(t, network.EventTeamChanged))

	r.RemovePlayer("d")
	assertTeamsBalanced(t, r)

	var changed network.TeamChanged
	require.True(t, conns["c"].last(t, network.EventTeamChanged, &changed))
	assert.Equal(t, network.TeamBlue, changed.NewTeam)
	assert.Equal(t, []string{"a"}, changed.GameState.Teams.Red)
	assert.Equal(t, []string{"c"}, changed.GameState.Teams.Blue)
	assert.Equal(t, 700.0, changed.GameState.Players["c"].X)
	assert.Zero(t, conns["a"].count(t, network.EventTeamChanged))

	// both teams survived the move, so the running match goes on
	assert.True(t, r.IsPlaying())
}

func TestRoom_HandleInput(t *testing.T) {
	t.Run("ignored before the match", func(t *testing.T) {
		r, _ := newTestRoom(t)
		join(t, r, "a")

		r.HandleInput("a", Input{Right: true})
		r.Tick()

		s := r.Snapshot()
		assert.Equal(t, network.InputState{}, s.Players["a"].Input)
		assert.Equal(t, 100.0, s.Players["a"].X)
	})

	t.Run("applied on the next tick", func(t *testing.T) {
		r, _ := newTestRoom(t)
		join(t, r, "a", "b")

		r.HandleInput("a", Input{Right: true, Down: true})
		r.HandleInput("ghost", Input{Left: true})
		r.Tick()

		s := r.Snapshot()
		assert.Equal(t, 105.0, s.Players["a"].X)
		assert.Equal(t, 305.0, s.Players["a"].Y)
		assert.True(t, s.Players["a"].Input.Right)
		assert.Equal(t, 700.0, s.Players["b"].X)
	})
}

func TestRoom_TickBroadcastsUpdate(t *testing.T) {
	r, _ := newTestRoom(t)
	conns := join(t, r, "a", "b")
	conns["a"].reset()
	conns["b"].reset()

	r.Tick()
	r.Tick()

	assert.Equal(t, 2, conns["a"].count(t, network.EventUpdate))
	assert.Equal(t, 2, conns["b"].count(t, network.EventUpdate))

	var upd network.Update
	require.True(t, conns["a"].last(t, network.EventUpdate, &upd))
	assert.True(t, upd.IsPlaying)
	assert.Equal(t, "test-room", upd.RoomID)
	assert.Len(t, upd.Players, 2)
}

func TestRoom_TickIdleWhenNotPlaying(t *testing.T) {
	r, _ := newTestRoom(t)
	conns := join(t, r, "a")
	conns["a"].reset()

	r.Tick()
	r.TimerTick()

	assert.Empty(t, conns["a"].events(t))
	assert.Equal(t, 60, r.Info().MatchTime)
}

func TestRoom_GoalAndReset(t *testing.T) {
	r, clock := newTestRoom(t)
	conns := join(t, r, "a", "b")
	conns["a"].reset()

	placeBall(r, 20, 300, 0, 0)
	r.Tick()

	var goal network.GoalScored
	require.True(t, conns["a"].last(t, network.EventGoalScored, &goal))
	assert.Equal(t, network.TeamBlue, goal.Team)
	assert.Equal(t, network.Score{Blue: 1}, r.Info().Score)

	// the ball lingers in the goal mouth while the reset is pending
	r.Tick()
	r.Tick()
	assert.Equal(t, 1, conns["a"].count(t, network.EventGoalScored))
	assert.Equal(t, network.Score{Blue: 1}, r.Info().Score)

	clock.Advance(499 * time.Millisecond)
	assert.Zero(t, conns["a"].count(t, network.EventBallReset))

	clock.Advance(time.Millisecond)
	require.Equal(t, 1, conns["a"].count(t, network.EventBallReset))

	b := ballOf(r)
	assert.GreaterOrEqual(t, b.X, 800.0/3)
	assert.LessOrEqual(t, b.X, 1600.0/3)
	assert.GreaterOrEqual(t, b.Y, 200.0)
	assert.LessOrEqual(t, b.Y, 400.0)
	assert.Zero(t, b.SpeedX)
	assert.Zero(t, b.SpeedY)
	assert.Zero(t, clock.pending())
}

func TestRoom_GoalCooldown(t *testing.T) {
	r, clock := newTestRoom(t)
	join(t, r, "a", "b")

	placeBall(r, 20, 300, 0, 0)
	r.Tick()
	clock.Advance(500 * time.Millisecond) // reset fires exactly at the cooldown

	placeBall(r, 20, 300, 0, 0)
	r.Tick()
	assert.Equal(t, network.Score{Blue: 1}, r.Info().Score, "still inside the cooldown")

	clock.Advance(time.Millisecond)
	r.Tick()
	assert.Equal(t, network.Score{Blue: 2}, r.Info().Score)
}

func TestRoom_GoalDetection(t *testing.T) {
	tests := []struct {
		name  string
		x, y  float64
		score network.Score
	}{
		{"left mouth scores for blue", 20, 300, network.Score{Blue: 1}},
		{"right mouth scores for red", 785, 300, network.Score{Red: 1}},
		{"left wall above the mouth", 20, 150, network.Score{}},
		{"right wall below the mouth", 785, 450, network.Score{}},
		{"midfield", 400, 300, network.Score{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRoom(t)
			join(t, r, "a", "b")

			placeBall(r, tt.x, tt.y, 0, 0)
			r.Tick()
			assert.Equal(t, tt.score, r.Info().Score)
		})
	}
}

func TestRoom_StopCancelsPendingReset(t *testing.T) {
	r, clock := newTestRoom(t)
	conns := join(t, r, "a", "b")

	placeBall(r, 20, 300, 0, 0)
	r.Tick()
	conns["a"].reset()

	r.Stop()
	r.Stop()
	clock.Advance(time.Second)

	assert.Empty(t, conns["a"].events(t))
	assert.True(t, r.IsClosed())
	assert.False(t, r.IsPlaying())

	r.Tick()
	r.TimerTick()
	r.HandleInput("a", Input{Left: true})
	assert.Empty(t, conns["a"].events(t))

	_, err := r.AddPlayer("late", &fakeConn{})
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoom_StaleResetIgnoredAfterNewMatch(t *testing.T) {
	r, clock := newTestRoom(t)
	join(t, r, "a", "b")

	placeBall(r, 20, 300, 0, 0)
	r.Tick()

	// the match ends before the reset fires
	for i := 0; i < 60; i++ {
		r.TimerTick()
	}
	require.True(t, r.WaitingForRestart())

	r.RequestRestart("a")
	r.RequestRestart("b")
	require.True(t, r.IsPlaying())

	before := ballOf(r)
	clock.Advance(time.Second)
	assert.Equal(t, before, ballOf(r))
}

func TestRoom_LongSimulationStaysFinite(t *testing.T) {
	r, clock := newTestRoom(t)
	ids := []string{"a", "b", "c", "d"}
	join(t, r, ids...)
	rng := rand.New(rand.NewPCG(9, 9))

	for i := 0; i < 6000; i++ {
		if i%15 == 0 {
			for _, id := range ids {
				r.HandleInput(id, Input{
					Left:  rng.IntN(2) == 0,
					Right: rng.IntN(2) == 0,
					Up:    rng.IntN(2) == 0,
					Down:  rng.IntN(2) == 0,
				})
			}
		}
		r.Tick()
		clock.Advance(16 * time.Millisecond)

		b := ballOf(r)
		require.False(t, math.IsNaN(b.X) || math.IsNaN(b.Y) || math.IsNaN(b.SpeedX) || math.IsNaN(b.SpeedY))
		require.GreaterOrEqual(t, b.X, 0.0)
		require.LessOrEqual(t, b.X, 800.0)
	}

	s := r.Snapshot()
	for id, p := range s.Players {
		assert.GreaterOrEqual(t, p.X, 20.0, id)
		assert.LessOrEqual(t, p.X, 780.0, id)
		assert.GreaterOrEqual(t, p.Y, 20.0, id)
		assert.LessOrEqual(t, p.Y, 580.0, id)
	}
}

func TestRoom_SnapshotIsReadOnly(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "a", "b")

	first := r.Snapshot()
	first.Teams.Red[0] = "mutated"
	first.Players["x"] = network.PlayerState{}

	second := r.Snapshot()
	assert.Equal(t, []string{"a"}, second.Teams.Red)
	assert.NotContains(t, second.Players, "x")
}
