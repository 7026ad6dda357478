package uci

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("engine pool closed")

type PoolConfig struct {
	BinaryPath string
	Options    Options
	Logger     *zap.Logger
}

// Pool owns the single engine process. Acquire hands out the session to one
// caller at a time and respawns it after a failed use.
type Pool struct {
	binaryPath string
	opt        Options
	logger     *zap.Logger

	slot chan struct{}

	mu     sync.Mutex
	idle   *Session
	closed bool
}

// LookupBinary resolves an engine path or bare command name on PATH.
func LookupBinary(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("binary path required")
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("engine binary check: %w", err)
	}
	return resolved, nil
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	resolved, err := LookupBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		binaryPath: resolved,
		opt:        cfg.Options,
		logger:     logger,
		slot:       make(chan struct{}, 1),
	}, nil
}

// Probe starts the engine once and completes the handshake.
func (p *Pool) Probe(ctx context.Context) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	p.Release(s, nil)
	return nil
}

func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	session, closed := p.idle, p.closed
	p.idle = nil
	p.mu.Unlock()

	if closed {
		<-p.slot
		return nil, ErrPoolClosed
	}

	if session != nil {
		err := session.EnsureReady(ctx)
		if err == nil {
			return session, nil
		}
		p.logger.Warn("uci_session_discard", zap.Error(err))
		_ = session.Close()
	}

	session, err := NewSession(ctx, p.binaryPath, p.opt, p.logger)
	if err != nil {
		<-p.slot
		return nil, err
	}
	p.logger.Debug("uci_session_started", zap.String("binary", p.binaryPath))
	return session, nil
}

// Release returns the session; a non-nil err discards it so the next
// Acquire starts a fresh process.
func (p *Pool) Release(session *Session, err error) {
	defer func() { <-p.slot }()
	if session == nil {
		return
	}
	if err != nil {
		p.logger.Warn("uci_session_release_error", zap.Error(err))
		_ = session.Close()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = session.Close()
		return
	}
	p.idle = session
	p.mu.Unlock()
}

func (p *Pool) Close() error {
	p.mu.Lock()
	session := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	if session != nil {
		return session.Close()
	}
	return nil
}
