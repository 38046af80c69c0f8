package network

// Server -> client event names
const (
	EventRoomAssigned       = "roomAssigned"
	EventInit               = "init"
	EventUpdate             = "update"
	EventBallReset          = "ballReset"
	EventGoalScored         = "goalScored"
	EventTimerUpdate        = "timerUpdate"
	EventMatchStart         = "matchStart"
	EventCleanPreviousMatch = "cleanPreviousMatch"
	EventMatchEnd           = "matchEnd"
	EventPlayerReadyUpdate  = "playerReadyUpdate"
	EventWaitingForPlayers  = "waitingForPlayers"
	EventWaitingForOpponent = "waitingForOpponent"
	EventTeamChanged        = "teamChanged"
	EventPlayerDisconnected = "playerDisconnected"
	EventRoomFull           = "roomFull"
	EventPing               = "ping"
)

// Client -> server event names
const (
	EventInput          = "input"
	EventRequestRestart = "requestRestart"
)

// Team names as they appear on the wire.
const (
	TeamRed  = "red"
	TeamBlue = "blue"
	Draw     = "draw"
)

// InputState is the directional intent of a player.
type InputState struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
}

// PlayerState is a player as seen by clients.
type PlayerState struct {
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Team  string     `json:"team"`
	Input InputState `json:"input"`
}

// BallState is the ball as seen by clients.
type BallState struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	SpeedX float64 `json:"speedX"`
	SpeedY float64 `json:"speedY"`
}

// Score per team.
type Score struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

// Teams lists connection ids per team in join order.
type Teams struct {
	Red  []string `json:"red"`
	Blue []string `json:"blue"`
}

// GameState is the full read-only projection of a room.
type GameState struct {
	Width     float64                `json:"width"`
	Height    float64                `json:"height"`
	Players   map[string]PlayerState `json:"players"`
	Ball      BallState              `json:"ball"`
	Score     Score                  `json:"score"`
	Teams     Teams                  `json:"teams"`
	MatchTime int                    `json:"matchTime"`
	IsPlaying bool                   `json:"isPlaying"`
	RoomID    string                 `json:"roomId"`
}

// Message is an outbound event. The set of implementations is closed.
type Message interface {
	Event() string
	message()
}

// RoomAssigned tells a new connection which room it landed in.
type RoomAssigned struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
	Players  int    `json:"players"`
}

// Init carries the joining player's team and the room state.
type Init struct {
	Team      string    `json:"team"`
	GameState GameState `json:"gameState"`
	CanMove   bool      `json:"canMove"`
	RoomID    string    `json:"roomId"`
}

// Update is the per-tick snapshot. Field names and nesting are fixed.
type Update struct {
	Players   map[string]PlayerState `json:"players"`
	Ball      BallState              `json:"ball"`
	Score     Score                  `json:"score"`
	MatchTime int                    `json:"matchTime"`
	IsPlaying bool                   `json:"isPlaying"`
	Teams     Teams                  `json:"teams"`
	RoomID    string                 `json:"roomId"`
}

type BallReset struct {
	Ball BallState `json:"ball"`
}

// GoalScored carries no ball position; clients hide the ball until BallReset.
type GoalScored struct {
	Team string `json:"team"`
}

type TimerUpdate struct {
	MatchTime int `json:"matchTime"`
}

type MatchStart struct {
	GameState GameState `json:"gameState"`
	CanMove   bool      `json:"canMove"`
}

type CleanPreviousMatch struct{}

type MatchEnd struct {
	Winner    string    `json:"winner"`
	GameState GameState `json:"gameState"`
}

type PlayerReadyUpdate struct {
	Players      map[string]PlayerState `json:"players"`
	ReadyCount   int                    `json:"readyCount"`
	TotalPlayers int                    `json:"totalPlayers"`
	CanMove      bool                   `json:"canMove"`
}

type WaitingForPlayers struct {
	RedCount  int `json:"redCount"`
	BlueCount int `json:"blueCount"`
}

type WaitingForOpponent struct{}

// TeamChanged is sent only to the player moved by team balancing.
type TeamChanged struct {
	NewTeam   string    `json:"newTeam"`
	GameState GameState `json:"gameState"`
}

type PlayerDisconnected struct {
	PlayerID  string    `json:"playerId"`
	GameState GameState `json:"gameState"`
}

// RoomFull precedes the server closing the connection.
type RoomFull struct {
	RoomID   string `json:"roomId"`
	Capacity int    `json:"capacity"`
}

// Ping carries the server time in milliseconds for latency display.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

func (RoomAssigned) Event() string       { return EventRoomAssigned }
func (Init) Event() string               { return EventInit }
func (Update) Event() string             { return EventUpdate }
func (BallReset) Event() string          { return EventBallReset }
func (GoalScored) Event() string         { return EventGoalScored }
func (TimerUpdate) Event() string        { return EventTimerUpdate }
func (MatchStart) Event() string         { return EventMatchStart }
func (CleanPreviousMatch) Event() string { return EventCleanPreviousMatch }
func (MatchEnd) Event() string           { return EventMatchEnd }
func (PlayerReadyUpdate) Event() string  { return EventPlayerReadyUpdate }
func (WaitingForPlayers) Event() string  { return EventWaitingForPlayers }
func (WaitingForOpponent) Event() string { return EventWaitingForOpponent }
func (TeamChanged) Event() string        { return EventTeamChanged }
func (PlayerDisconnected) Event() string { return EventPlayerDisconnected }
func (RoomFull) Event() string           { return EventRoomFull }
func (Ping) Event() string               { return EventPing }

func (RoomAssigned) message()       {}
func (Init) message()               {}
func (Update) message()             {}
func (BallReset) message()          {}
func (GoalScored) message()         {}
func (TimerUpdate) message()        {}
func (MatchStart) message()         {}
func (CleanPreviousMatch) message() {}
func (MatchEnd) message()           {}
func (PlayerReadyUpdate) message()  {}
func (WaitingForPlayers) message()  {}
func (WaitingForOpponent) message() {}
func (TeamChanged) message()        {}
func (PlayerDisconnected) message() {}
func (RoomFull) message()           {}
func (Ping) message()               {}

// Inbound is a validated client message. The set of implementations is closed.
type Inbound interface {
	inbound()
}

// InputMessage replaces the sender's directional intent.
type InputMessage struct {
	Input InputState
}

// RequestRestartMessage asks to start the next match.
type RequestRestartMessage struct{}

func (InputMessage) inbound()          {}
func (RequestRestartMessage) inbound() {}
