package chess

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess/rules"
	"github.com/park285/chess-room-server/internal/chess/search"
)

const (
	MinFallbackDepth = 2
	MaxFallbackDepth = 4
)

// FallbackEngine searches in process. Its depth stays small so a reply never
// takes long; requests may lower it but not raise it.
type FallbackEngine struct {
	depth  int
	logger *zap.Logger
}

func NewFallbackEngine(depth int, logger *zap.Logger) *FallbackEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackEngine{depth: clampDepth(depth, MinFallbackDepth, MaxFallbackDepth), logger: logger}
}

func clampDepth(d, lo, hi int) int {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func (e *FallbackEngine) Name() string { return "fallback" }

func (e *FallbackEngine) Depth() int { return e.depth }

func (e *FallbackEngine) Search(ctx context.Context, fen string, opts SearchOptions) (SearchResult, error) {
	board, err := rules.FromFEN(fen)
	if err != nil {
		return SearchResult{}, err
	}
	depth := e.depth
	if opts.Depth > 0 {
		depth = clampDepth(opts.Depth, MinFallbackDepth, e.depth)
	}
	res, err := search.Search(ctx, board.Position(), depth)
	if err != nil {
		return SearchResult{}, fmt.Errorf("fallback search: %w", err)
	}
	e.logger.Debug("fallback_search",
		zap.Int("depth", depth),
		zap.Int("nodes", res.Nodes),
		zap.String("best", res.Move),
		zap.Int("eval_cp", res.Score),
	)
	if res.Move == "" {
		return SearchResult{}, nil
	}
	return SearchResult{BestMove: res.Move, EvalCP: res.Score}, nil
}

func (e *FallbackEngine) Close() error { return nil }
