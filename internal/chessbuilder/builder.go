package chessbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/chess/openingbook"
	"github.com/park285/chess-room-server/internal/config"
	"github.com/park285/chess-room-server/internal/gameroom"
	"github.com/park285/chess-room-server/internal/msgcat"
	"github.com/park285/chess-room-server/internal/redisconn"
	"github.com/park285/chess-room-server/internal/server"
)

type Deps struct {
	Engine  chess.Engine
	Queue   *chess.Queue
	Manager *gameroom.Manager
	Hub     *server.Hub
	Server  *server.Server
	Redis   *redis.Client
}

// New wires the process from cfg. Redis is optional: without REDIS_URL the
// eval cache and room store stay in memory.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bots, err := chess.LoadBotTable(cfg.BotsFile)
	if err != nil {
		return nil, fmt.Errorf("load bots: %w", err)
	}
	if cfg.DefaultBot != "" {
		if err := bots.SetDefault(cfg.DefaultBot); err != nil {
			return nil, fmt.Errorf("default bot: %w", err)
		}
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	book, err := openingbook.Load(cfg.BookPath)
	if err != nil {
		return nil, err
	}

	var (
		rdb   *redis.Client
		cache chess.EvalCache
		store gameroom.Store
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err = redisconn.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		cache = chess.NewRedisEvalCache(rdb, cfg.EvalCacheTTL, logger)
		store = gameroom.NewRedisStore(rdb, cfg.RoomTTL)
		logger.Info("redis_enabled")
	} else {
		cache = chess.NewMemoryEvalCache(cfg.EvalCacheTTL)
		store = gameroom.NewMemoryStore(cfg.RoomTTL)
	}

	engine := chess.SelectEngine(ctx, chess.SelectConfig{
		StockfishPath:  cfg.StockfishPath,
		Skill:          cfg.EngineSkill,
		Depth:          cfg.EngineDepth,
		MoveTimeMillis: cfg.EngineMoveTimeMs,
		FallbackDepth:  cfg.FallbackDepth,
	}, logger)
	engine = chess.WithBook(engine, book, logger)
	queue := chess.NewQueue(engine, cache, chess.QueueConfig{Delay: cfg.QueueDelay}, logger)

	hub := server.NewHub(logger)
	manager := gameroom.NewManager(queue, hub, gameroom.Config{
		Bots:   bots,
		Store:  store,
		Logger: logger,
	})
	srv := server.New(server.Deps{
		Manager:        manager,
		Hub:            hub,
		Evaluator:      queue,
		Bots:           bots,
		Catalog:        catalog,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		EvalThrottle:   cfg.EvalThrottle,
	})

	return &Deps{Engine: engine, Queue: queue, Manager: manager, Hub: hub, Server: srv, Redis: rdb}, nil
}

// Close stops bot replies, drains the queue, then releases the engine and
// redis in that order.
func (d *Deps) Close() error {
	d.Manager.Close()
	d.Queue.Close()
	err := d.Engine.Close()
	if d.Redis != nil {
		if rerr := d.Redis.Close(); err == nil {
			err = rerr
		}
	}
	return err
}
