package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/chess-room-server/internal/chessbuilder"
	appcfg "github.com/park285/chess-room-server/internal/config"
	"github.com/park285/chess-room-server/internal/obslog"
)

const (
	shutdownTimeout = 10 * time.Second
	evictInterval   = 5 * time.Minute
	evictIdle       = 30 * time.Minute
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           deps.Server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", httpSrv.Addr), zap.String("engine", deps.Engine.Name()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(evictInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				deps.Manager.Evict(evictIdle)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server_error", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("close_error", zap.Error(err))
	}
}
