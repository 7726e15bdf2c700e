package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig is read from ARENA_* environment variables.
type AppConfig struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Store selects the session document store: redis, mongo or memory.
	Store         string `envconfig:"STORE" default:"redis"`
	RedisURL      string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"arena"`

	// Archive selects the game archive: postgres, badger, http or none.
	Archive     string `envconfig:"ARCHIVE" default:"none"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	BadgerPath  string `envconfig:"BADGER_PATH" default:"data/archive"`
	ArchiveURL  string `envconfig:"ARCHIVE_URL"`
	ArchiveKey  string `envconfig:"ARCHIVE_KEY"`

	// Players selects the player repository: postgres or memory.
	Players string `envconfig:"PLAYERS" default:"memory"`

	TickInterval       time.Duration `envconfig:"TICK_INTERVAL" default:"1s"`
	JoinTimeout        time.Duration `envconfig:"JOIN_TIMEOUT" default:"2m"`
	MatchmakingRetries int           `envconfig:"MATCHMAKING_RETRIES" default:"5"`
	SeatPreference     string        `envconfig:"SEAT_PREFERENCE" default:"white"`
	DefaultTimeControl string        `envconfig:"DEFAULT_TIME_CONTROL" default:"300+5"`

	Event string `envconfig:"EVENT" default:"Cheese Arena"`
	Site  string `envconfig:"SITE" default:"cheese-arena"`

	MessagesDir string `envconfig:"MESSAGES_DIR"`

	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"legacy"`
	LogToConsole bool   `envconfig:"LOG_TO_CONSOLE" default:"true"`
	LogToFile    bool   `envconfig:"LOG_TO_FILE" default:"false"`
	LogFile      string `envconfig:"LOG_FILE" default:"logs/arena.log"`
	LogCaller    bool   `envconfig:"LOG_CALLER" default:"false"`
}

const prefix = "ARENA"

func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Archive = strings.ToLower(strings.TrimSpace(cfg.Archive))
	cfg.Players = strings.ToLower(strings.TrimSpace(cfg.Players))

	switch cfg.Store {
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, errors.New("ARENA_REDIS_URL is required for the redis store")
		}
	case "mongo":
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return nil, errors.New("ARENA_MONGO_URI is required for the mongo store")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown ARENA_STORE %q", cfg.Store)
	}

	switch cfg.Archive {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("ARENA_DATABASE_URL is required for the postgres archive")
		}
	case "http":
		if strings.TrimSpace(cfg.ArchiveURL) == "" {
			return nil, errors.New("ARENA_ARCHIVE_URL is required for the http archive")
		}
	case "badger", "none":
	default:
		return nil, fmt.Errorf("unknown ARENA_ARCHIVE %q", cfg.Archive)
	}

	switch cfg.Players {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("ARENA_DATABASE_URL is required for the postgres player repository")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown ARENA_PLAYERS %q", cfg.Players)
	}

	if cfg.TickInterval <= 0 {
		return nil, errors.New("ARENA_TICK_INTERVAL must be positive")
	}
	return &cfg, nil
}
