// Package mirror publishes a reduced, binary copy of each running match to
// a message bus for secondary low latency consumers.
package mirror

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pitch/server/internal/game"
	"github.com/pitch/server/internal/network"
)

// Publisher delivers an encoded snapshot on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// State is the lightweight snapshot carried by the mirror.
type State struct {
	Players   map[string]network.PlayerState `json:"players"`
	Ball      network.BallState              `json:"ball"`
	Score     network.Score                  `json:"score"`
	MatchTime int                            `json:"matchTime"`
	IsPlaying bool                           `json:"isPlaying"`
}

// Encode serializes a mirror state with msgpack, keyed by the same field
// names as the JSON protocol.
func Encode(s State) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(&s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (State, error) {
	var s State
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	err := dec.Decode(&s)
	return s, err
}

// Mirror publishes room snapshots on "<prefix>.<roomId>".
type Mirror struct {
	pub    Publisher
	prefix string
}

// New creates a mirror publishing through pub.
func New(pub Publisher, prefix string) *Mirror {
	return &Mirror{pub: pub, prefix: prefix}
}

// Subject is the subject a room is mirrored on.
func (m *Mirror) Subject(roomID string) string {
	return m.prefix + "." + roomID
}

// Publish mirrors one room. Rooms without a running match are skipped.
func (m *Mirror) Publish(room *game.Room) error {
	s := room.Snapshot()
	if !s.IsPlaying {
		return nil
	}

	data, err := Encode(State{
		Players:   s.Players,
		Ball:      s.Ball,
		Score:     s.Score,
		MatchTime: s.MatchTime,
		IsPlaying: s.IsPlaying,
	})
	if err != nil {
		return fmt.Errorf("encode mirror state: %w", err)
	}

	if err := m.pub.Publish(m.Subject(room.ID), data); err != nil {
		return fmt.Errorf("publish mirror state for %s: %w", room.ID, err)
	}
	return nil
}

// NATSPublisher publishes on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// ConnectNATS dials url and keeps reconnecting for the life of the process.
func ConnectNATS(url string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("pitch-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return NewNATSPublisher(conn), nil
}

func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
