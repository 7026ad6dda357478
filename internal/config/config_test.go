package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "STOCKFISH_PATH", "ENGINE_SKILL", "ENGINE_DEPTH", "ENGINE_MOVETIME_MS",
	"FALLBACK_DEPTH", "DEFAULT_BOT", "BOTS_FILE", "REDIS_URL", "EVAL_CACHE_TTL_MS",
	"QUEUE_DELAY_MS", "EVAL_THROTTLE_MS", "ROOM_TTL_SEC", "MESSAGES_DIR", "ALLOWED_ORIGINS",
	"CHESS_POLYGLOT_BOOK_PATH",
}

// isolate runs the test from an empty directory with every key unset.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, "stockfish", cfg.StockfishPath)
	require.Equal(t, 15, cfg.EngineSkill)
	require.Equal(t, 12, cfg.EngineDepth)
	require.Equal(t, 150, cfg.EngineMoveTimeMs)
	require.Equal(t, 3, cfg.FallbackDepth)
	require.Equal(t, "bot1200", cfg.DefaultBot)
	require.Equal(t, 1500*time.Millisecond, cfg.EvalCacheTTL)
	require.Equal(t, 10*time.Millisecond, cfg.QueueDelay)
	require.Equal(t, 180*time.Millisecond, cfg.EvalThrottle)
	require.Equal(t, 24*time.Hour, cfg.RoomTTL)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	require.Empty(t, cfg.RedisURL)
	require.Empty(t, cfg.BookPath)
}

func TestLoadOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STOCKFISH_PATH", "")
	t.Setenv("ENGINE_SKILL", "3")
	t.Setenv("FALLBACK_DEPTH", "not-a-number")
	t.Setenv("EVAL_THROTTLE_MS", "250")
	t.Setenv("ROOM_TTL_SEC", "60")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example,https://a.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Empty(t, cfg.StockfishPath)
	require.Equal(t, 3, cfg.EngineSkill)
	require.Equal(t, 3, cfg.FallbackDepth)
	require.Equal(t, 250*time.Millisecond, cfg.EvalThrottle)
	require.Equal(t, time.Minute, cfg.RoomTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEFAULT_BOT=bot400\nPORT=7000\n"), 0o600))
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "bot400", cfg.DefaultBot)
	require.Equal(t, "7100", cfg.Port, "process env wins over .env")
}

func TestLoadRejectsBadPort(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "http")
	_, err := Load()
	require.Error(t, err)
}
