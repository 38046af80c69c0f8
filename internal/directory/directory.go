// Package directory mirrors room occupancy into Redis so that load balancers
// and other servers can see which rooms exist and how full they are.
//
// Every room is a hash at "<prefix>:<roomId>" with the fields players,
// capacity, playing and updatedAt. Entries expire unless refreshed, so a
// crashed server does not leave stale rooms behind.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitch/server/internal/game"
)

const (
	DefaultPrefix  = "pitch:rooms"
	DefaultTTL     = 2 * time.Minute
	defaultTimeout = 500 * time.Millisecond
)

// ErrNotFound is returned by Lookup for unknown or expired rooms.
var ErrNotFound = errors.New("room not in directory")

// Entry is one room as stored in the directory.
type Entry struct {
	RoomID    string
	Players   int
	Capacity  int
	Playing   bool
	UpdatedAt time.Time
}

// Option customizes a RedisDirectory.
type Option func(*RedisDirectory)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(d *RedisDirectory) { d.prefix = prefix }
}

// WithTTL sets how long an entry lives without a refresh.
func WithTTL(ttl time.Duration) Option {
	return func(d *RedisDirectory) { d.ttl = ttl }
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *RedisDirectory) { d.logger = l }
}

// RedisDirectory is a best-effort room directory. Write failures are logged
// and never reach gameplay.
type RedisDirectory struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a directory on an existing client.
func New(client redis.Cmdable, opts ...Option) *RedisDirectory {
	d := &RedisDirectory{
		client:  client,
		prefix:  DefaultPrefix,
		ttl:     DefaultTTL,
		timeout: defaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect opens and pings a Redis client from a redis:// URL.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key is the hash key of a room.
func (d *RedisDirectory) Key(roomID string) string {
	return d.prefix + ":" + roomID
}

// RoomChanged writes the room's occupancy and renews its TTL.
func (d *RedisDirectory) RoomChanged(info game.RoomInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.Put(ctx, info); err != nil {
		d.logger.Warn("directory update failed", "room_id", info.ID, "error", err)
	}
}

// RoomRemoved deletes the room's entry.
func (d *RedisDirectory) RoomRemoved(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.client.Del(ctx, d.Key(roomID)).Err(); err != nil {
		d.logger.Warn("directory delete failed", "room_id", roomID, "error", err)
	}
}

// Put stores one room.
func (d *RedisDirectory) Put(ctx context.Context, info game.RoomInfo) error {
	key := d.Key(info.ID)

	err := d.client.HSet(ctx, key,
		"players", info.Players,
		"capacity", info.Capacity,
		"playing", strconv.FormatBool(info.IsPlaying),
		"updatedAt", d.now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}

	if err := d.client.Expire(ctx, key, d.ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// Lookup reads one room back.
func (d *RedisDirectory) Lookup(ctx context.Context, roomID string) (Entry, error) {
	fields, err := d.client.HGetAll(ctx, d.Key(roomID)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("hgetall %s: %w", d.Key(roomID), err)
	}
	if len(fields) == 0 {
		return Entry{}, ErrNotFound
	}

	e := Entry{RoomID: roomID}
	e.Players, _ = strconv.Atoi(fields["players"])
	e.Capacity, _ = strconv.Atoi(fields["capacity"])
	e.Playing, _ = strconv.ParseBool(fields["playing"])
	if ms, err := strconv.ParseInt(fields["updatedAt"], 10, 64); err == nil {
		e.UpdatedAt = time.UnixMilli(ms)
	}
	return e, nil
}
