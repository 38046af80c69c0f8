// Package matchmaker is the room registry: it maps requested room ids to
// rooms, creates and retires rooms and tracks which room each connection is
// in.
package matchmaker

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pitch/server/config"
	"github.com/pitch/server/internal/game"
)

const maxRoomIDLength = 32

var (
	// ErrRoomFull is wrapped by every *RoomFullError.
	ErrRoomFull = errors.New("room is full")
	// ErrServerFull is returned when a new room would exceed the room limit.
	ErrServerFull = errors.New("server is full")
)

// RoomFullError reports a join against a specific room at capacity.
type RoomFullError struct {
	RoomID   string
	Capacity int
}

func (e *RoomFullError) Error() string {
	return fmt.Sprintf("room %q is full (capacity %d)", e.RoomID, e.Capacity)
}

func (e *RoomFullError) Unwrap() error { return ErrRoomFull }

// Directory mirrors room occupancy somewhere outside the process. Calls are
// made without the registry lock held and must not block for long.
type Directory interface {
	RoomChanged(info game.RoomInfo)
	RoomRemoved(roomID string)
}

type nopDirectory struct{}

func (nopDirectory) RoomChanged(game.RoomInfo) {}
func (nopDirectory) RoomRemoved(string)        {}

// Option customizes a matchmaker.
type Option func(*Matchmaker)

// WithDirectory publishes room occupancy to d.
func WithDirectory(d Directory) Option {
	return func(m *Matchmaker) {
		if d != nil {
			m.directory = d
		}
	}
}

// WithLogger sets the registry logger. Rooms derive theirs from it.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matchmaker) { m.logger = l }
}

// WithRoomOptions is applied to every room the matchmaker creates.
func WithRoomOptions(opts ...game.Option) Option {
	return func(m *Matchmaker) { m.roomOpts = append(m.roomOpts, opts...) }
}

// Matchmaker handles room allocation and connection bookkeeping.
//
// Lock order: the registry lock is taken before any room lock, never the
// other way round. Methods ending in "Unlocked" expect the caller to hold mu.
type Matchmaker struct {
	mu    sync.RWMutex
	cfg   config.GameConfig
	rooms map[string]*game.Room
	order []string          // creation order; allocation scans rooms in it
	conns map[string]string // connection id -> room id
	seq   int

	directory Directory
	roomOpts  []game.Option
	logger    *slog.Logger
}

// NewMatchmaker creates an empty registry.
func NewMatchmaker(cfg config.GameConfig, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		cfg:       cfg,
		rooms:     make(map[string]*game.Room),
		conns:     make(map[string]string),
		seq:       1,
		directory: nopDirectory{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sanitize normalizes a client supplied room id: lower-cased, trimmed,
// whitespace runs turned into "-", anything outside [a-z0-9-_] dropped and
// the result cut to 32 characters. It reports false when nothing usable is
// left.
func Sanitize(id string) (string, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", false
	}
	id = strings.Join(strings.Fields(id), "-")

	var b strings.Builder
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		}
	}

	out := b.String()
	if len(out) > maxRoomIDLength {
		out = out[:maxRoomIDLength]
	}
	return out, out != ""
}

// GenerateID returns the next free "room-N" id.
func (m *Matchmaker) GenerateID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateIDUnlocked()
}

func (m *Matchmaker) generateIDUnlocked() string {
	for {
		id := "room-" + strconv.Itoa(m.seq)
		m.seq++
		if _, taken := m.rooms[id]; !taken {
			return id
		}
	}
}

// Allocate resolves a requested room id to a room. An empty or unusable id
// gets the first room with space, or a new one. A usable id gets that room,
// created on demand, unless it is full.
func (m *Matchmaker) Allocate(requested string) (*game.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, _, err := m.allocateUnlocked(requested)
	return room, err
}

func (m *Matchmaker) allocateUnlocked(requested string) (room *game.Room, created bool, err error) {
	id, ok := Sanitize(requested)
	if !ok {
		return m.findAvailableUnlocked()
	}

	if room, exists := m.rooms[id]; exists {
		if room.IsFull() {
			return nil, false, &RoomFullError{RoomID: id, Capacity: room.Capacity()}
		}
		return room, false, nil
	}

	room, err = m.createRoomUnlocked(id)
	if err != nil {
		return nil, false, err
	}
	return room, true, nil
}

// findAvailableUnlocked finds an available room or creates a new one
func (m *Matchmaker) findAvailableUnlocked() (*game.Room, bool, error) {
	for _, id := range m.order {
		if room := m.rooms[id]; !room.IsFull() {
			return room, false, nil
		}
	}

	room, err := m.createRoomUnlocked("")
	if err != nil {
		return nil, false, err
	}
	return room, true, nil
}

func (m *Matchmaker) createRoomUnlocked(id string) (*game.Room, error) {
	if m.cfg.MaxRooms > 0 && len(m.rooms) >= m.cfg.MaxRooms {
		return nil, ErrServerFull
	}
	if _, taken := m.rooms[id]; id == "" || taken {
		id = m.generateIDUnlocked()
	}

	opts := append([]game.Option{game.WithLogger(m.logger)}, m.roomOpts...)
	room := game.NewRoom(id, m.cfg, opts...)

	m.rooms[id] = room
	m.order = append(m.order, id)

	m.logger.Info("room created", "room_id", id, "rooms", len(m.rooms))
	return room, nil
}

// Join allocates a room for the connection and adds it as a player, all
// under the registry lock so a concurrent leave cannot retire the room in
// between. A connection that is already registered rejoins its own room.
func (m *Matchmaker) Join(connID, requested string, conn game.PlayerConnection) (*game.Room, game.Team, error) {
	m.mu.Lock()

	var (
		room    *game.Room
		created bool
		err     error
	)
	if roomID, ok := m.conns[connID]; ok {
		room = m.rooms[roomID]
	}
	if room == nil {
		room, created, err = m.allocateUnlocked(requested)
		if err != nil {
			m.mu.Unlock()
			return nil, "", err
		}
	}

	team, err := room.AddPlayer(connID, conn)
	if err != nil {
		if created {
			m.removeRoomUnlocked(room)
		}
		m.mu.Unlock()
		if errors.Is(err, game.ErrRoomFull) {
			return nil, "", &RoomFullError{RoomID: room.ID, Capacity: room.Capacity()}
		}
		return nil, "", err
	}
	m.conns[connID] = room.ID
	m.mu.Unlock()

	m.announce(room)
	return room, team, nil
}

// Leave removes the connection from its room and retires the room if that
// left it empty. Unknown connections are ignored.
func (m *Matchmaker) Leave(connID string) {
	m.mu.Lock()

	roomID, ok := m.conns[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, connID)

	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	room.RemovePlayer(connID)
	removed := m.cleanupIfEmptyUnlocked(room)
	m.mu.Unlock()

	if removed {
		m.directory.RoomRemoved(roomID)
	} else {
		m.announce(room)
	}
}

// CleanupIfEmpty removes and stops the room if nobody is left in it.
func (m *Matchmaker) CleanupIfEmpty(room *game.Room) bool {
	m.mu.Lock()
	removed := m.cleanupIfEmptyUnlocked(room)
	m.mu.Unlock()

	if removed {
		m.directory.RoomRemoved(room.ID)
	}
	return removed
}

func (m *Matchmaker) cleanupIfEmptyUnlocked(room *game.Room) bool {
	if room == nil || !room.IsEmpty() || m.rooms[room.ID] != room {
		return false
	}
	m.removeRoomUnlocked(room)
	return true
}

func (m *Matchmaker) removeRoomUnlocked(room *game.Room) {
	room.Stop()
	delete(m.rooms, room.ID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == room.ID })

	m.logger.Info("room removed", "room_id", room.ID, "rooms", len(m.rooms))
}

// CleanupEmptyRooms removes all empty rooms
func (m *Matchmaker) CleanupEmptyRooms() int {
	m.mu.Lock()

	var removed []string
	for _, id := range slices.Clone(m.order) {
		room := m.rooms[id]
		if room.IsEmpty() {
			m.removeRoomUnlocked(room)
			removed = append(removed, id)
		}
	}
	m.mu.Unlock()

	for _, id := range removed {
		m.directory.RoomRemoved(id)
	}
	return len(removed)
}

// RefreshDirectory republishes every room so directory entries outlive
// their TTL while the room is alive.
func (m *Matchmaker) RefreshDirectory() {
	for _, room := range m.Rooms() {
		m.announce(room)
	}
}

// announce publishes the room to the directory. Directory writes happen
// outside the registry lock, so a room retired in the meantime is skipped
// rather than written back after its RoomRemoved.
func (m *Matchmaker) announce(room *game.Room) {
	if room.IsClosed() {
		return
	}
	m.directory.RoomChanged(room.Info())
}

// Rooms returns the active rooms in creation order.
func (m *Matchmaker) Rooms() []*game.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*game.Room, 0, len(m.order))
	for _, id := range m.order {
		rooms = append(rooms, m.rooms[id])
	}
	return rooms
}

// GetRoom gets a room by ID
func (m *Matchmaker) GetRoom(roomID string) *game.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rooms[roomID]
}

// RoomOf returns the room a connection is in, or nil.
func (m *Matchmaker) RoomOf(connID string) *game.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomID, ok := m.conns[connID]
	if !ok {
		return nil
	}
	return m.rooms[roomID]
}

// Stop retires every room.
func (m *Matchmaker) Stop() {
	m.mu.Lock()
	ids := slices.Clone(m.order)
	for _, id := range ids {
		m.removeRoomUnlocked(m.rooms[id])
	}
	clear(m.conns)
	m.mu.Unlock()

	for _, id := range ids {
		m.directory.RoomRemoved(id)
	}
}

// GetStats returns matchmaker statistics
func (m *Matchmaker) GetStats() MatchmakerStats {
	rooms := m.Rooms()

	stats := MatchmakerStats{
		TotalRooms: len(rooms),
		Rooms:      make([]RoomStats, 0, len(rooms)),
	}

	for _, room := range rooms {
		info := room.Info()
		stats.TotalPlayers += info.Players
		stats.Rooms = append(stats.Rooms, RoomStats{
			ID:          info.ID,
			PlayerCount: info.Players,
			MaxPlayers:  info.Capacity,
			IsPlaying:   info.IsPlaying,
			MatchTime:   info.MatchTime,
			ScoreRed:    info.Score.Red,
			ScoreBlue:   info.Score.Blue,
		})
	}

	return stats
}

// MatchmakerStats contains matchmaker statistics
type MatchmakerStats struct {
	TotalRooms   int         `json:"rooms"`
	TotalPlayers int         `json:"players"`
	Rooms        []RoomStats `json:"roomList"`
}

// RoomStats contains room statistics
type RoomStats struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"players"`
	MaxPlayers  int    `json:"capacity"`
	IsPlaying   bool   `json:"isPlaying"`
	MatchTime   int    `json:"matchTime"`
	ScoreRed    int    `json:"scoreRed"`
	ScoreBlue   int    `json:"scoreBlue"`
}
