package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

type AppConfig struct {
	Port string

	StockfishPath    string
	EngineSkill      int
	EngineDepth      int
	EngineMoveTimeMs int
	FallbackDepth    int

	DefaultBot string
	BotsFile   string
	BookPath   string

	RedisURL     string
	EvalCacheTTL time.Duration
	QueueDelay   time.Duration
	EvalThrottle time.Duration
	RoomTTL      time.Duration

	MessagesDir    string
	AllowedOrigins []string
}

// Load reads the environment after applying an optional .env file from the
// working directory. Variables already set win over the file.
func Load() (*AppConfig, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		Port:             "8080",
		StockfishPath:    "stockfish",
		EngineSkill:      15,
		EngineDepth:      12,
		EngineMoveTimeMs: 150,
		FallbackDepth:    3,
		DefaultBot:       "bot1200",
		EvalCacheTTL:     1500 * time.Millisecond,
		QueueDelay:       10 * time.Millisecond,
		EvalThrottle:     180 * time.Millisecond,
		RoomTTL:          24 * time.Hour,
		AllowedOrigins:   []string{"*"},
	}

	if v := env("PORT"); v != "" {
		cfg.Port = v
	}
	if v, ok := os.LookupEnv("STOCKFISH_PATH"); ok {
		// an explicitly empty value disables the native engine
		cfg.StockfishPath = strings.TrimSpace(v)
	}
	intVar("ENGINE_SKILL", &cfg.EngineSkill, 0)
	intVar("ENGINE_DEPTH", &cfg.EngineDepth, 1)
	intVar("ENGINE_MOVETIME_MS", &cfg.EngineMoveTimeMs, 0)
	intVar("FALLBACK_DEPTH", &cfg.FallbackDepth, 1)

	if v := env("DEFAULT_BOT"); v != "" {
		cfg.DefaultBot = v
	}
	cfg.BotsFile = env("BOTS_FILE")
	cfg.BookPath = env("CHESS_POLYGLOT_BOOK_PATH")
	cfg.RedisURL = env("REDIS_URL")
	cfg.MessagesDir = env("MESSAGES_DIR")

	millisVar("EVAL_CACHE_TTL_MS", &cfg.EvalCacheTTL)
	millisVar("QUEUE_DELAY_MS", &cfg.QueueDelay)
	millisVar("EVAL_THROTTLE_MS", &cfg.EvalThrottle)
	if v := env("ROOM_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RoomTTL = time.Duration(n) * time.Second
		}
	}

	if v := env("ALLOWED_ORIGINS"); v != "" {
		origins := lo.Uniq(lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		})))
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a TCP port, got %q", c.Port)
	}
	if c.EngineSkill > 20 {
		return errors.New("ENGINE_SKILL must be within 0-20")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string { return ":" + c.Port }

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// intVar overwrites dst when key holds an integer >= floor.
func intVar(key string, dst *int, floor int) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= floor {
			*dst = n
		}
	}
}

func millisVar(key string, dst *time.Duration) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
