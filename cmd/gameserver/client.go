package main

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pitch/server/internal/game"
	"github.com/pitch/server/internal/network"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	appPingPeriod  = time.Second
	sendBufferSize = 256
)

var errConnClosed = errors.New("connection closed")

// ClientConnection represents a single connected client.
// Each client has its own goroutines for reading and writing messages.
type ClientConnection struct {
	id       string
	ws       *websocket.Conn
	server   *GameServer
	room     *game.Room
	sendChan chan []byte   // Buffered channel for outgoing messages
	done     chan struct{} // Closed once the connection is shutting down

	closeOnce   sync.Once
	cleanupOnce sync.Once
}

func newClientConnection(id string, ws *websocket.Conn, server *GameServer) *ClientConnection {
	return &ClientConnection{
		id:       id,
		ws:       ws,
		server:   server,
		sendChan: make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// Send queues data to be sent to the client.
// Non-blocking: drops message if buffer is full (prevents slow clients from blocking the room).
func (c *ClientConnection) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		// Buffer full - the next update supersedes this one
		return nil
	}
}

// Close shuts the socket down. Safe to call multiple times.
func (c *ClientConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the client's address for logging.
func (c *ClientConnection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// writePump handles sending messages to the client. It also sends protocol
// pings to detect dead connections and the app level ping event.
func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	appTicker := time.NewTicker(appPingPeriod)
	defer appTicker.Stop()
	defer c.cleanup()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.sendChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case now := <-appTicker.C:
			data := c.server.protocol.MustEncode(network.Ping{Timestamp: now.UnixMilli()})
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles receiving messages from the client.
func (c *ClientConnection) readPump() {
	defer c.cleanup()

	c.ws.SetReadLimit(network.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			// Only log unexpected errors (not normal disconnects)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Debug("read error", "conn_id", c.id, "error", err)
			}
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage dispatches a decoded client event to the room. Invalid
// messages are dropped.
func (c *ClientConnection) handleMessage(data []byte) {
	msg, err := c.server.protocol.Decode(data)
	if err != nil {
		c.server.logger.Debug("dropped invalid message", "conn_id", c.id, "error", err)
		return
	}

	switch m := msg.(type) {
	case network.InputMessage:
		c.room.HandleInput(c.id, game.InputFromState(m.Input))
	case network.RequestRestartMessage:
		c.room.RequestRestart(c.id)
	}
}

// cleanup removes the player from its room and closes the socket. Called
// from whichever pump exits first.
func (c *ClientConnection) cleanup() {
	c.cleanupOnce.Do(func() {
		c.server.untrack(c)
		c.server.matchmaker.Leave(c.id)
		c.Close()
		c.server.logger.Info("connection closed", "conn_id", c.id, "room_id", c.room.ID)
	})
}
