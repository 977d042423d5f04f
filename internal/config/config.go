package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const localEnvFile = "local.env"

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"LOCAL"`

	// DatabaseDSN selects the Postgres store; empty runs in memory.
	DatabaseDSN string `env:"DATABASE_DSN"`
	// SeedFile is a JSON document of league members and players loaded into
	// the in-memory store. Ignored when DatabaseDSN is set.
	SeedFile string `env:"SEED_FILE"`
	// JWTSecret enables bearer token checks; empty disables them.
	JWTSecret string `env:"JWT_SECRET"`

	LeagueCapacity   int `env:"LEAGUE_CAPACITY" envDefault:"12"`
	SubscriberBuffer int `env:"SUBSCRIBER_BUFFER" envDefault:"32"`
	RoomInboxSize    int `env:"ROOM_INBOX_SIZE" envDefault:"64"`

	SaveTimeout     time.Duration `env:"SAVE_TIMEOUT" envDefault:"5s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	WSWriteTimeout  time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
	WSPingInterval  time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

func (c Config) IsLocal() bool { return strings.EqualFold(c.Environment, "LOCAL") }

// Load reads local.env (outside PROD) and then the process environment.
func Load() (Config, error) {
	if os.Getenv("ENVIRONMENT") != "PROD" {
		if err := godotenv.Load(localEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", localEnvFile, err)
		}
	}
	return Parse()
}

func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LeagueCapacity < 2 || c.LeagueCapacity%2 != 0 {
		return fmt.Errorf("LEAGUE_CAPACITY must be a positive even number, got %d", c.LeagueCapacity)
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be positive, got %d", c.SubscriberBuffer)
	}
	if c.Environment == "PROD" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in PROD")
	}
	return nil
}
