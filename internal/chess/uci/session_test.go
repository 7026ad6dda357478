package uci

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

const fakeEngineEnv = "UCI_FAKE_ENGINE"

// TestMain doubles as a tiny UCI engine when the test binary is started by
// NewSession with fakeEngineEnv set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeEngineEnv); mode != "" {
		runFakeEngine(mode)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runFakeEngine(mode string) {
	out := bufio.NewWriter(os.Stdout)
	emit := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
		out.Flush()
	}
	searching := false
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "uci":
			emit("id name fake")
			emit("uciok")
		case line == "isready":
			emit("readyok")
		case line == "quit":
			return
		case line == "stop":
			if searching {
				searching = false
				emit("bestmove e7e5")
			}
		case strings.HasPrefix(line, "go"):
			switch mode {
			case "hang":
				emit("info depth 3 score cp -12 pv e7e5")
				searching = true
			case "mate":
				emit("info depth 5 score mate 3 pv d8h4")
				emit("bestmove d8h4")
			case "none":
				emit("info depth 0 score mate 0")
				emit("bestmove (none)")
			default:
				emit("info depth 1 score cp 10 pv d2d4")
				emit("info depth 2 score cp 34 pv e2e4 e7e5")
				emit("bestmove e2e4 ponder e7e5")
			}
		}
	}
}

func newFakeSession(t *testing.T, mode string) *Session {
	t.Helper()
	t.Setenv(fakeEngineEnv, mode)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := NewSession(ctx, os.Args[0], Options{SkillLevel: 25}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchReturnsBestMove(t *testing.T) {
	s := newFakeSession(t, "normal")
	if s.skill != MaxSkill {
		t.Fatalf("skill not clamped: %d", s.skill)
	}
	resp, err := s.Search(context.Background(), SearchRequest{FEN: "startpos", Limits: Limits{MoveTimeMillis: 50}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e2e4" || resp.EvalCP != 34 || resp.TimedOut {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchMateScore(t *testing.T) {
	s := newFakeSession(t, "mate")
	resp, err := s.Search(context.Background(), SearchRequest{Limits: Limits{Depth: 5}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.EvalCP != MateScore || resp.BestMove != "d8h4" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchNoMove(t *testing.T) {
	s := newFakeSession(t, "none")
	resp, err := s.Search(context.Background(), SearchRequest{Limits: Limits{Depth: 5}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "" || resp.EvalCP != -MateScore {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchHardTimeout(t *testing.T) {
	s := newFakeSession(t, "hang")
	start := time.Now()
	resp, err := s.Search(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 20}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	elapsed := time.Since(start)
	if !resp.TimedOut || resp.BestMove != "" || resp.EvalCP != -12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if elapsed < minSearchTimeout || elapsed > minSearchTimeout+time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
	// the stale bestmove emitted after stop must not leak into the next search
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
}

func TestSetSkillClamps(t *testing.T) {
	s := newFakeSession(t, "normal")
	if err := s.SetSkill(-3); err != nil {
		t.Fatalf("SetSkill: %v", err)
	}
	if s.skill != MinSkill {
		t.Fatalf("skill = %d", s.skill)
	}
}

func TestHardTimeout(t *testing.T) {
	cases := []struct {
		limits Limits
		want   time.Duration
	}{
		{Limits{Depth: 12}, 1200 * time.Millisecond},
		{Limits{MoveTimeMillis: 80}, 1200 * time.Millisecond},
		{Limits{MoveTimeMillis: 1000}, 1400 * time.Millisecond},
	}
	for _, c := range cases {
		if got := HardTimeout(c.limits); got != c.want {
			t.Fatalf("HardTimeout(%+v) = %s want %s", c.limits, got, c.want)
		}
	}
}

func TestBuildGoTokens(t *testing.T) {
	got, err := buildGoTokens(Limits{Depth: 8, MoveTimeMillis: 200})
	if err != nil || strings.Join(got, " ") != "go movetime 200" {
		t.Fatalf("movetime preferred: %v %v", got, err)
	}
	got, err = buildGoTokens(Limits{Depth: 8})
	if err != nil || strings.Join(got, " ") != "go depth 8" {
		t.Fatalf("depth fallback: %v %v", got, err)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatal("expected error without limits")
	}
}

func TestParseInfo(t *testing.T) {
	info, ok := parseInfo("info depth 14 seldepth 20 multipv 1 score cp -57 nodes 1000 pv e7e5 g1f3")
	if !ok || info.evalCP != -57 || info.depth != 14 {
		t.Fatalf("cp parse: %+v %v", info, ok)
	}
	info, ok = parseInfo("info depth 9 score mate -2 pv a1a2")
	if !ok || info.evalCP != -MateScore {
		t.Fatalf("mate parse: %+v %v", info, ok)
	}
	if _, ok := parseInfo("info string NNUE enabled"); ok {
		t.Fatal("info string must not carry a score")
	}
}
