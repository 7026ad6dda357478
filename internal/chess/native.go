package chess

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess/uci"
)

const (
	defaultNativeDepth    = 12
	defaultNativeMoveTime = 150
	defaultNativeHashMB   = 16
	nativeProbeTimeout    = 5 * time.Second
)

type NativeConfig struct {
	BinaryPath     string
	Skill          int
	Depth          int
	MoveTimeMillis int
}

// NativeEngine drives a UCI engine process, single threaded and without
// pondering.
type NativeEngine struct {
	pool     *uci.Pool
	skill    int
	depth    int
	moveTime int
	logger   *zap.Logger
}

func NewNativeEngine(ctx context.Context, cfg NativeConfig, logger *zap.Logger) (*NativeEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	skill := uci.ClampSkill(cfg.Skill)
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    uci.Options{SkillLevel: skill, HashMB: defaultNativeHashMB},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, nativeProbeTimeout)
	defer cancel()
	if err := pool.Probe(probeCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("probe engine: %w", err)
	}

	e := &NativeEngine{
		pool:     pool,
		skill:    skill,
		depth:    cfg.Depth,
		moveTime: cfg.MoveTimeMillis,
		logger:   logger,
	}
	if e.depth <= 0 {
		e.depth = defaultNativeDepth
	}
	if e.moveTime < 0 {
		e.moveTime = defaultNativeMoveTime
	}
	return e, nil
}

func (e *NativeEngine) Name() string { return "stockfish" }

func (e *NativeEngine) Search(ctx context.Context, fen string, opts SearchOptions) (SearchResult, error) {
	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return SearchResult{}, fmt.Errorf("acquire engine: %w", err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	skill := e.skill
	if opts.Skill != nil {
		skill = *opts.Skill
	}
	if err := session.SetSkill(skill); err != nil {
		releaseErr = err
		return SearchResult{}, err
	}
	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return SearchResult{}, err
	}

	resp, err := session.Search(ctx, uci.SearchRequest{FEN: fen, Limits: e.limits(opts)})
	if err != nil {
		releaseErr = err
		return SearchResult{}, err
	}

	eval := resp.EvalCP
	if blackToMove(fen) {
		eval = -eval
	}
	return SearchResult{BestMove: resp.BestMove, EvalCP: eval}, nil
}

func (e *NativeEngine) limits(opts SearchOptions) uci.Limits {
	switch {
	case opts.MoveTimeMillis > 0:
		return uci.Limits{MoveTimeMillis: opts.MoveTimeMillis}
	case opts.Depth > 0:
		return uci.Limits{Depth: opts.Depth}
	case e.moveTime > 0:
		return uci.Limits{MoveTimeMillis: e.moveTime}
	default:
		return uci.Limits{Depth: e.depth}
	}
}

func (e *NativeEngine) Close() error {
	return e.pool.Close()
}
