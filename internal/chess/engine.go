package chess

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SearchOptions bounds one search. Skill is nil when the engine default
// applies.
type SearchOptions struct {
	MoveTimeMillis int
	Depth          int
	Skill          *int
	// RequireMove skips the eval cache: a cached hit carries no move and
	// would silently drop the bot's reply.
	RequireMove bool
}

// SearchResult is an engine answer. BestMove is "" when no move is offered.
// EvalCP is from white's point of view. Book results carry no evaluation.
type SearchResult struct {
	BestMove string `json:"bestMove"`
	EvalCP   int    `json:"evalCp"`
	Book     bool   `json:"book,omitempty"`
}

// Engine proposes moves for a FEN position.
type Engine interface {
	Search(ctx context.Context, fen string, opts SearchOptions) (SearchResult, error)
	Name() string
	Close() error
}

// SkillLevel returns a pointer for SearchOptions.Skill.
func SkillLevel(level int) *int { return &level }

type SelectConfig struct {
	StockfishPath  string
	Skill          int
	Depth          int
	MoveTimeMillis int
	FallbackDepth  int
}

// SelectEngine decides once which engine serves the process: the native UCI
// engine when its binary answers the handshake, otherwise the in-process
// fallback search.
func SelectEngine(ctx context.Context, cfg SelectConfig, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) != "" {
		native, err := NewNativeEngine(ctx, NativeConfig{
			BinaryPath:     cfg.StockfishPath,
			Skill:          cfg.Skill,
			Depth:          cfg.Depth,
			MoveTimeMillis: cfg.MoveTimeMillis,
		}, logger)
		if err == nil {
			logger.Info("engine_selected", zap.String("engine", native.Name()), zap.String("binary", cfg.StockfishPath))
			return native
		}
		logger.Warn("native_engine_unavailable", zap.String("binary", cfg.StockfishPath), zap.Error(err))
	}
	fallback := NewFallbackEngine(cfg.FallbackDepth, logger)
	logger.Info("engine_selected", zap.String("engine", fallback.Name()), zap.Int("depth", fallback.depth))
	return fallback
}

func blackToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) > 1 && fields[1] == "b"
}
