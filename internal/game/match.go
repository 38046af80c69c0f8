package game

import (
	"time"

	"github.com/pitch/server/internal/network"
)

// Match lifecycle:
//
//	waiting for players ──both teams present──▶ playing
//	playing ──clock hits zero──▶ ended (waiting for restart)
//	ended ──whole roster ready, both teams present──▶ playing
//	ended ──whole roster ready, a team empty──▶ waiting for opponent
//	any ──a team empties──▶ waiting for players

// RequestRestart marks a player ready for the next match. It is only
// honored after a match has ended.
func (r *Room) RequestRestart(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.waitingForRestart {
		return
	}
	p, ok := r.players[id]
	if !ok {
		return
	}

	r.playersReady[id] = struct{}{}
	// Back on the spot, still frozen until the match starts.
	p.MoveToSpot(r.width, r.height)

	roster := r.rosterSizeUnlocked()
	allReady := roster > 0
	for _, ids := range [][]string{r.red, r.blue} {
		for _, pid := range ids {
			if _, ready := r.playersReady[pid]; !ready {
				allReady = false
			}
		}
	}

	r.broadcastUnlocked(network.PlayerReadyUpdate{
		Players:      r.playerStatesUnlocked(),
		ReadyCount:   len(r.playersReady),
		TotalPlayers: roster,
		CanMove:      false,
	})

	if !allReady {
		return
	}

	if len(r.red) > 0 && len(r.blue) > 0 {
		r.startNewMatchUnlocked()
	} else {
		r.broadcastUnlocked(network.WaitingForOpponent{})
	}
}

// IsPlaying reports whether a match is running.
func (r *Room) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPlaying
}

// WaitingForRestart reports whether the room is between matches.
func (r *Room) WaitingForRestart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitingForRestart
}

// checkRestartConditionsUnlocked runs after every roster change.
func (r *Room) checkRestartConditionsUnlocked() {
	r.balanceTeamsUnlocked()

	if len(r.red) > 0 && len(r.blue) > 0 {
		if !r.isPlaying && !r.waitingForRestart {
			r.startNewMatchUnlocked()
		}
		return
	}

	r.isPlaying = false
	r.broadcastUnlocked(network.WaitingForPlayers{
		RedCount:  len(r.red),
		BlueCount: len(r.blue),
	})
}

// balanceTeamsUnlocked moves the most recently added players of the larger
// team until the sizes differ by at most one. Each moved player is told its
// new team.
func (r *Room) balanceTeamsUnlocked() {
	for {
		diff := len(r.red) - len(r.blue)
		if diff >= -1 && diff <= 1 {
			return
		}

		larger := TeamRed
		if diff < 0 {
			larger = TeamBlue
		}
		smaller := larger.Other()

		from := r.rosterUnlocked(larger)
		id := (*from)[len(*from)-1]
		*from = (*from)[:len(*from)-1]

		to := r.rosterUnlocked(smaller)
		*to = append(*to, id)

		p, ok := r.players[id]
		if !ok {
			continue
		}
		p.Team = smaller
		p.MoveToSpot(r.width, r.height)

		r.logger.Info("team rebalanced", "conn_id", id, "team", smaller)

		r.sendUnlocked(p, network.TeamChanged{
			NewTeam:   string(smaller),
			GameState: r.snapshotUnlocked(),
		})
	}
}

// startNewMatchUnlocked kicks off a fresh match with every player on their
// spot.
func (r *Room) startNewMatchUnlocked() {
	r.isPlaying = true
	r.waitingForRestart = false
	clear(r.playersReady)
	r.score = network.Score{}
	r.matchTime = r.cfg.MatchDuration
	r.lastGoalTime = time.Time{}

	r.cancelBallResetUnlocked()
	r.resetBallUnlocked()

	for _, p := range r.players {
		p.MoveToSpot(r.width, r.height)
		p.Input = Input{}
	}

	r.logger.Info("match started", "red", len(r.red), "blue", len(r.blue), "duration", r.matchTime)

	r.broadcastUnlocked(network.CleanPreviousMatch{})
	r.broadcastUnlocked(network.MatchStart{
		GameState: r.snapshotUnlocked(),
		CanMove:   true,
	})
}

// endMatchUnlocked closes the current match and parks everyone off the
// field until the restart negotiation completes.
func (r *Room) endMatchUnlocked() {
	r.isPlaying = false
	r.waitingForRestart = true
	r.cancelBallResetUnlocked()
	r.ballResetInProgress = false

	winner := Winner(r.score)

	for _, p := range r.players {
		p.ParkOffField()
		p.Input = Input{}
	}

	r.logger.Info("match ended", "winner", winner, "red", r.score.Red, "blue", r.score.Blue)

	r.broadcastUnlocked(network.MatchEnd{
		Winner:    winner,
		GameState: r.snapshotUnlocked(),
	})
}

// Winner names the winning team of a score, or draw.
func Winner(s network.Score) string {
	switch {
	case s.Red > s.Blue:
		return network.TeamRed
	case s.Blue > s.Red:
		return network.TeamBlue
	default:
		return network.Draw
	}
}

func (r *Room) rosterSizeUnlocked() int {
	return len(r.red) + len(r.blue)
}
