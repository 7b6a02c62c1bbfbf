package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"arenagame/world"
)

// Duration decodes TOML strings such as "16ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	Address        string   `toml:"address"`
	StaticDir      string   `toml:"static_dir"`
	OriginPatterns []string `toml:"origin_patterns"`
	ReadLimit      int64    `toml:"read_limit"`
	InboxSize      int      `toml:"inbox_size"`
	OutboxSize     int      `toml:"outbox_size"`
	ResyncInterval Duration `toml:"resync_interval"`
}

type GameConfig struct {
	TickInterval    Duration `toml:"tick_interval"`
	BulletSpeed     float64  `toml:"bullet_speed"`
	BulletLifetime  Duration `toml:"bullet_lifetime"`
	RespawnDelay    Duration `toml:"respawn_delay"`
	PlayerRadius    float64  `toml:"player_radius"`
	BulletRadius    float64  `toml:"bullet_radius"`
	WorldHalfExtent float64  `toml:"world_half_extent"`
	PlayHalfExtent  float64  `toml:"play_half_extent"`
	SpawnHalfExtent float64  `toml:"spawn_half_extent"`
	// Seed fixes the spawn/color generator; 0 seeds from the clock.
	Seed int64 `toml:"seed"`
}

type AdmissionConfig struct {
	ShotsPerSecond      float64 `toml:"shots_per_second"`
	ShotBurst           int     `toml:"shot_burst"`
	MaxBulletsPerPlayer int     `toml:"max_bullets_per_player"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Game      GameConfig      `toml:"game"`
	Admission AdmissionConfig `toml:"admission"`
	Logging   LoggingConfig   `toml:"logging"`
}

func DefaultConfig() *Config {
	t := world.DefaultTuning()
	return &Config{
		Server: ServerConfig{
			Address:        "localhost:3000",
			StaticDir:      "public",
			ReadLimit:      1 << 16,
			InboxSize:      1024,
			OutboxSize:     1024,
			ResyncInterval: Duration{time.Second},
		},
		Game: GameConfig{
			TickInterval:    Duration{t.TickInterval},
			BulletSpeed:     t.BulletSpeed,
			BulletLifetime:  Duration{t.BulletLifetime},
			RespawnDelay:    Duration{t.RespawnDelay},
			PlayerRadius:    t.PlayerRadius,
			BulletRadius:    t.BulletRadius,
			WorldHalfExtent: t.WorldHalfExtent,
			PlayHalfExtent:  t.PlayHalfExtent,
			SpawnHalfExtent: t.SpawnHalfExtent,
		},
		Admission: AdmissionConfig{
			ShotsPerSecond:      10,
			ShotBurst:           5,
			MaxBulletsPerPlayer: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ReadTOML overlays the file on top of the defaults.
func ReadTOML(fileName string) (*Config, error) {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", fileName, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", fileName, err)
	}
	return config, config.Validate()
}

// LoadConfig reads fileName if it exists, falls back to the defaults if it
// does not, and applies the PORT override from the environment or a .env
// file.
func LoadConfig(fileName string) (*Config, error) {
	config, err := ReadTOML(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		config, err = DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Address = WithPort(config.Server.Address, port)
	}
	return config, nil
}

// WithPort replaces the port of a host:port address.
func WithPort(address, port string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	return net.JoinHostPort(host, port)
}

func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.TickInterval.Duration <= 0:
		return errors.New("game.tick_interval must be positive")
	case g.BulletLifetime.Duration <= 0:
		return errors.New("game.bullet_lifetime must be positive")
	case g.RespawnDelay.Duration < 0:
		return errors.New("game.respawn_delay must not be negative")
	case g.BulletSpeed < 0 || g.PlayerRadius < 0 || g.BulletRadius < 0:
		return errors.New("game speeds and radii must not be negative")
	case g.PlayHalfExtent > g.WorldHalfExtent:
		return errors.New("game.play_half_extent exceeds game.world_half_extent")
	case g.SpawnHalfExtent > g.PlayHalfExtent:
		return errors.New("game.spawn_half_extent exceeds game.play_half_extent")
	case c.Server.InboxSize <= 0 || c.Server.OutboxSize <= 0:
		return errors.New("server queue sizes must be positive")
	}
	return nil
}

func (c *Config) Tuning() world.Tuning {
	g := c.Game
	return world.Tuning{
		TickInterval:    g.TickInterval.Duration,
		BulletSpeed:     g.BulletSpeed,
		BulletLifetime:  g.BulletLifetime.Duration,
		RespawnDelay:    g.RespawnDelay.Duration,
		PlayerRadius:    g.PlayerRadius,
		BulletRadius:    g.BulletRadius,
		WorldHalfExtent: g.WorldHalfExtent,
		PlayHalfExtent:  g.PlayHalfExtent,
		SpawnHalfExtent: g.SpawnHalfExtent,
	}
}

func (c *Config) AdmissionPolicy() world.Admission {
	return world.Admission{
		ShotsPerSecond:     c.Admission.ShotsPerSecond,
		ShotBurst:          c.Admission.ShotBurst,
		MaxBulletsPerOwner: c.Admission.MaxBulletsPerPlayer,
	}
}

func AlmostEqual(a, b, threshold float64) bool {
	return math.Abs(a-b) <= threshold
}
