package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scheduler rates. The clock sweep always runs at 1 Hz because matchTime
// is counted in whole seconds.
const (
	PhysicsTickRate = 60 // Hz
	ClockTickRate   = 1  // Hz
	MirrorTickRate  = 30 // Hz
)

// Team spots and the off-field parking position used after a match ends.
const (
	SpawnInset  = 100.0
	OffFieldPos = -100.0
)

// GameConfig holds every tunable constant of the simulation. Changing any of
// these does not change the wire protocol.
type GameConfig struct {
	FieldWidth  float64 `yaml:"field_width"`
	FieldHeight float64 `yaml:"field_height"`

	PlayerRadius float64 `yaml:"player_radius"`
	BallRadius   float64 `yaml:"ball_radius"`
	GoalWidth    float64 `yaml:"goal_width"`
	GoalHeight   float64 `yaml:"goal_height"`
	CornerSize   float64 `yaml:"corner_size"`

	MatchDuration     int           `yaml:"match_duration"` // seconds
	MaxPlayersPerRoom int           `yaml:"max_players_per_room"`
	MaxRooms          int           `yaml:"max_rooms"` // 0 = unlimited
	GoalCooldown      time.Duration `yaml:"goal_cooldown"`

	// Per-tick movement and response
	PlayerSpeed     float64 `yaml:"player_speed"`
	KickSpeed       float64 `yaml:"kick_speed"`
	KickOvershoot   float64 `yaml:"kick_overshoot"`
	BallFriction    float64 `yaml:"ball_friction"`
	WallRestitution float64 `yaml:"wall_restitution"` // applied as a negative factor
	CornerDamping   float64 `yaml:"corner_damping"`
}

// DefaultGameConfig returns the stock tuning of the game.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		FieldWidth:        800,
		FieldHeight:       600,
		PlayerRadius:      20,
		BallRadius:        10,
		GoalWidth:         50,
		GoalHeight:        200,
		CornerSize:        80,
		MatchDuration:     60,
		MaxPlayersPerRoom: 6,
		MaxRooms:          0,
		GoalCooldown:      500 * time.Millisecond,
		PlayerSpeed:       5,
		KickSpeed:         12,
		KickOvershoot:     1.1,
		BallFriction:      0.89,
		WallRestitution:   0.7,
		CornerDamping:     0.7,
	}
}

// Validate rejects tunings the simulation cannot honor.
func (g GameConfig) Validate() error {
	switch {
	case g.FieldWidth <= 0 || g.FieldHeight <= 0:
		return errors.New("field dimensions must be positive")
	case g.PlayerRadius <= 0 || g.BallRadius <= 0:
		return errors.New("radii must be positive")
	case 2*g.PlayerRadius >= g.FieldWidth || 2*g.PlayerRadius >= g.FieldHeight:
		return errors.New("player does not fit on the field")
	case g.GoalWidth <= g.BallRadius:
		return fmt.Errorf("goal width %.0f must exceed ball radius %.0f", g.GoalWidth, g.BallRadius)
	case g.GoalHeight <= 0 || g.GoalHeight > g.FieldHeight:
		return errors.New("goal height must be within the field height")
	case g.CornerSize < 0 || 2*g.CornerSize > g.FieldWidth || 2*g.CornerSize > g.FieldHeight:
		return errors.New("corner size does not fit the field")
	case g.MatchDuration <= 0:
		return errors.New("match duration must be positive")
	case g.MaxPlayersPerRoom < 2:
		return errors.New("rooms need room for at least two players")
	case g.MaxRooms < 0:
		return errors.New("max rooms cannot be negative")
	case g.GoalCooldown <= 0:
		return errors.New("goal cooldown must be positive")
	case g.BallFriction <= 0 || g.BallFriction > 1:
		return errors.New("ball friction must be in (0, 1]")
	case g.PlayerSpeed <= 0 || g.KickSpeed <= 0:
		return errors.New("player and kick speeds must be positive")
	case g.KickOvershoot < 1:
		return errors.New("kick overshoot must be at least 1")
	case g.WallRestitution < 0 || g.WallRestitution > 1:
		// the bounce applies the sign itself
		return fmt.Errorf("wall restitution %.2f must be in [0, 1]", g.WallRestitution)
	case g.CornerDamping < 0 || g.CornerDamping > 1:
		return fmt.Errorf("corner damping %.2f must be in [0, 1]", g.CornerDamping)
	}
	return nil
}

// ServerConfig is the process configuration.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	EnableCORS bool   `yaml:"enable_cors"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Optional collaborators; empty disables them.
	RedisURL      string `yaml:"redis_url"`
	NATSURL       string `yaml:"nats_url"`
	MirrorSubject string `yaml:"mirror_subject"`

	Game GameConfig `yaml:"game"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "0.0.0.0",
		Port:          3000,
		EnableCORS:    true,
		LogLevel:      "info",
		LogFormat:     "text",
		MirrorSubject: "pitch.mirror",
		Game:          DefaultGameConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and finally the process environment.
func Load(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	applyEnv(cfg)

	if err := cfg.Game.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *ServerConfig) {
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	// CORS can be disabled for production behind a reverse proxy
	if cors := os.Getenv("ENABLE_CORS"); cors == "false" {
		cfg.EnableCORS = false
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATSURL = url
	}
}
