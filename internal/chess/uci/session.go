package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond

	minSearchTimeout    = 1200 * time.Millisecond
	searchTimeoutMargin = 400 * time.Millisecond

	// MateScore is reported for forced mates instead of a distance.
	MateScore = 100000

	MinSkill = 0
	MaxSkill = 20
)

var ErrEngineExited = errors.New("engine process exited")

type Options struct {
	SkillLevel int
	HashMB     int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
}

type SearchRequest struct {
	FEN    string
	Limits Limits
}

// SearchResponse carries the engine's answer. EvalCP is from the side to
// move. TimedOut responses have an empty BestMove.
type SearchResponse struct {
	BestMove string
	EvalCP   int
	Depth    int
	TimedOut bool
}

// Session is one running UCI engine process.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	logger *zap.Logger

	mu     sync.Mutex
	search sync.Mutex
	skill  int
}

// ClampSkill forces a skill level into the range engines accept.
func ClampSkill(level int) int {
	if level < MinSkill {
		return MinSkill
	}
	if level > MaxSkill {
		return MaxSkill
	}
	return level
}

// NewSession starts the engine and completes the uci/isready handshake. ctx
// bounds the handshake only; the process outlives it.
func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opt.SkillLevel = ClampSkill(opt.SkillLevel)
	if opt.HashMB <= 0 {
		opt.HashMB = 16
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 1024),
		logger: logger,
		skill:  opt.SkillLevel,
	}
	go s.readLoop(stdoutPipe)

	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) readLoop(r io.Reader) {
	defer close(s.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.lines <- strings.TrimSpace(scanner.Text())
	}
}

// Search runs one bounded search. It never waits longer than the hard
// timeout: on expiry it sends stop and returns the last evaluation seen.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	if err := s.send(buildPositionCommand(req.FEN)); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, HardTimeout(req.Limits))
	defer cancel()

	var resp SearchResponse
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if errors.Is(err, ErrEngineExited) {
				return SearchResponse{}, err
			}
			s.logger.Warn("uci_search_timeout",
				zap.String("go", goCmd),
				zap.Int("last_eval_cp", resp.EvalCP),
				zap.Int("depth", resp.Depth),
			)
			_ = s.send("stop\n")
			resp.TimedOut = true
			resp.BestMove = ""
			return resp, nil
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if info, ok := parseInfo(line); ok {
				resp.EvalCP = info.evalCP
				resp.Depth = info.depth
			}
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) >= 2 && parts[1] != "(none)" && parts[1] != "0000" {
				resp.BestMove = parts[1]
			}
			return resp, nil
		}
	}
}

// SetSkill changes the Skill Level option between searches.
func (s *Session) SetSkill(level int) error {
	level = ClampSkill(level)
	if level == s.skill {
		return nil
	}
	if err := s.send(fmt.Sprintf("setoption name Skill Level value %d\n", level)); err != nil {
		return fmt.Errorf("set skill: %w", err)
	}
	s.skill = level
	return nil
}

// HardTimeout bounds a search: the requested movetime plus a margin, never
// below a fixed floor.
func HardTimeout(l Limits) time.Duration {
	d := time.Duration(l.MoveTimeMillis)*time.Millisecond + searchTimeoutMargin
	if d < minSearchTimeout {
		return minSearchTimeout
	}
	return d
}

func buildPositionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos\n"
	}
	return "position fen " + fen + "\n"
}

// buildGoTokens prefers a time budget and falls back to a depth limit.
func buildGoTokens(l Limits) ([]string, error) {
	switch {
	case l.MoveTimeMillis > 0:
		return []string{"go", "movetime", strconv.Itoa(l.MoveTimeMillis)}, nil
	case l.Depth > 0:
		return []string{"go", "depth", strconv.Itoa(l.Depth)}, nil
	default:
		return nil, fmt.Errorf("no search limits specified")
	}
}

type infoLine struct {
	depth  int
	evalCP int
}

func parseInfo(line string) (infoLine, bool) {
	parts := strings.Fields(line)
	var (
		out     infoLine
		evalSet bool
	)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					out.depth = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				kind, val := parts[i+1], parts[i+2]
				v, err := strconv.Atoi(val)
				if err == nil {
					switch kind {
					case "cp":
						out.evalCP = v
						evalSet = true
					case "mate":
						if v > 0 {
							out.evalCP = MateScore
						} else {
							out.evalCP = -MateScore
						}
						evalSet = true
					}
				}
				i += 2
			}
		case "pv":
			i = len(parts)
		}
	}
	return out, evalSet
}

// EnsureReady syncs with the engine, discarding any output left over from
// an abandoned search.
func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	return retry.Do(
		func() error { return s.EnsureReady(ctx) },
		retry.Context(ctx),
		retry.Attempts(newGameRetryAttempts),
		retry.Delay(newGameRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrEngineExited) }),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("uci_ready_retry", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		_, _ = io.WriteString(s.stdin, "quit\n")
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cmd != nil {
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	if err := s.applyOptions(opt); err != nil {
		return err
	}
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// applyOptions pins the engine to one thread without pondering.
func (s *Session) applyOptions(opt Options) error {
	cmds := []string{
		"setoption name Threads value 1\n",
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		"setoption name Ponder value false\n",
		fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel),
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", ErrEngineExited
		}
		return line, nil
	}
}
