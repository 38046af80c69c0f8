package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pitch/server/config"
	"github.com/pitch/server/internal/matchmaker"
	"github.com/pitch/server/internal/network"
)

// GameServer is the main server instance that manages all connections and rooms.
// It handles WebSocket upgrades and routes messages to the connection's room.
type GameServer struct {
	config     *config.ServerConfig
	matchmaker *matchmaker.Matchmaker
	protocol   *network.Protocol
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu          sync.Mutex
	connections map[*ClientConnection]struct{}
}

// NewGameServer creates a server on top of an existing room registry.
func NewGameServer(cfg *config.ServerConfig, mm *matchmaker.Matchmaker, logger *slog.Logger) *GameServer {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	// Without CORS the upgrader falls back to its same-origin check.
	if cfg.EnableCORS {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &GameServer{
		config:      cfg,
		matchmaker:  mm,
		protocol:    network.NewProtocol(),
		upgrader:    upgrader,
		logger:      logger,
		connections: make(map[*ClientConnection]struct{}),
	}
}

// Router registers the HTTP endpoints.
func (s *GameServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.config.EnableCORS {
		r.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Next()
		})
	}

	r.GET("/ws", s.handleWebSocket)  // WebSocket game connections
	r.GET("/health", s.handleHealth) // Health check for load balancers
	r.GET("/stats", s.handleStats)   // Server statistics

	return r
}

func (s *GameServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *GameServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.matchmaker.GetStats())
}

// handleWebSocket upgrades the request, places the connection in a room and
// starts its pumps. A full room or server is answered with a roomFull event
// before the socket is closed.
func (s *GameServer) handleWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}

	requested := c.Query("roomId")
	conn := newClientConnection(uuid.NewString(), ws, s)

	room, team, err := s.matchmaker.Join(conn.id, requested, conn)
	if err != nil {
		s.reject(ws, requested, err)
		return
	}
	conn.room = room
	s.track(conn)

	s.logger.Info("player connected",
		"conn_id", conn.id,
		"room_id", room.ID,
		"team", team,
		"remote", conn.RemoteAddr())

	go conn.writePump()
	go conn.readPump()
}

// reject tells the client why it could not join and closes the socket.
func (s *GameServer) reject(ws *websocket.Conn, requested string, err error) {
	defer ws.Close()

	msg := network.RoomFull{RoomID: requested, Capacity: s.config.Game.MaxPlayersPerRoom}

	var full *matchmaker.RoomFullError
	switch {
	case errors.As(err, &full):
		msg.RoomID = full.RoomID
		msg.Capacity = full.Capacity
	case errors.Is(err, matchmaker.ErrServerFull):
		if id, ok := matchmaker.Sanitize(requested); ok {
			msg.RoomID = id
		}
	default:
		s.logger.Error("join failed", "room_id", requested, "error", err)
	}

	s.logger.Info("join rejected", "room_id", msg.RoomID, "reason", err)

	deadline := time.Now().Add(writeWait)
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, s.protocol.MustEncode(msg)); err != nil {
		return
	}
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room full"), deadline)
}

func (s *GameServer) track(c *ClientConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c] = struct{}{}
}

func (s *GameServer) untrack(c *ClientConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, c)
}

// ConnectionCount is the number of live client connections.
func (s *GameServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// CloseAll closes every client connection. Their pumps clean up the rooms.
func (s *GameServer) CloseAll() {
	s.mu.Lock()
	conns := make([]*ClientConnection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// runMaintenance sweeps empty rooms, refreshes the room directory and logs
// statistics until ctx is done.
func (s *GameServer) runMaintenance(ctx context.Context) {
	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()
	stats := time.NewTicker(5 * time.Minute)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-cleanup.C:
			if removed := s.matchmaker.CleanupEmptyRooms(); removed > 0 {
				s.logger.Info("cleaned up empty rooms", "removed", removed)
			}
			s.matchmaker.RefreshDirectory()

		case <-stats.C:
			st := s.matchmaker.GetStats()
			if st.TotalRooms > 0 || st.TotalPlayers > 0 {
				s.logger.Info("stats", "rooms", st.TotalRooms, "players", st.TotalPlayers, "connections", s.ConnectionCount())
			}
		}
	}
}
