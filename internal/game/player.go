package game

import (
	"time"

	"github.com/pitch/server/config"
	"github.com/pitch/server/internal/network"
)

// Team is a side of the pitch.
type Team string

const (
	TeamRed  Team = network.TeamRed
	TeamBlue Team = network.TeamBlue
)

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// Input is the directional intent of a player. It is replaced wholesale by
// every input message and read once per tick.
type Input struct {
	Left  bool
	Right bool
	Up    bool
	Down  bool
}

// InputFromState converts the wire form of an input.
func InputFromState(s network.InputState) Input {
	return Input{Left: s.Left, Right: s.Right, Up: s.Up, Down: s.Down}
}

func (in Input) state() network.InputState {
	return network.InputState{Left: in.Left, Right: in.Right, Up: in.Up, Down: in.Down}
}

// PlayerConnection interface for network abstraction
type PlayerConnection interface {
	Send(data []byte) error
	Close() error
	RemoteAddr() string
}

// Player represents a connected player. Players are owned by their room and
// only touched under the room lock.
type Player struct {
	ID         string
	Team       Team
	X          float64
	Y          float64
	Input      Input
	Connection PlayerConnection
	JoinedAt   time.Time
}

// NewPlayer creates a new player
func NewPlayer(id string, team Team, conn PlayerConnection, now time.Time) *Player {
	return &Player{
		ID:         id,
		Team:       team,
		Connection: conn,
		JoinedAt:   now,
	}
}

// MoveToSpot places the player on its team's kick-off spot.
func (p *Player) MoveToSpot(width, height float64) {
	if p.Team == TeamRed {
		p.X = config.SpawnInset
	} else {
		p.X = width - config.SpawnInset
	}
	p.Y = height / 2
}

// ParkOffField hides the player between matches.
func (p *Player) ParkOffField() {
	p.X = config.OffFieldPos
	p.Y = config.OffFieldPos
}

// State returns the wire form of the player.
func (p *Player) State() network.PlayerState {
	return network.PlayerState{
		X:     p.X,
		Y:     p.Y,
		Team:  string(p.Team),
		Input: p.Input.state(),
	}
}

// Ball is the match ball.
type Ball struct {
	X      float64
	Y      float64
	Radius float64
	SpeedX float64
	SpeedY float64
}

// State returns the wire form of the ball.
func (b Ball) State() network.BallState {
	return network.BallState{
		X:      b.X,
		Y:      b.Y,
		Radius: b.Radius,
		SpeedX: b.SpeedX,
		SpeedY: b.SpeedY,
	}
}
