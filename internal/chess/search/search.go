// Package search is the in-process move search used when no UCI engine is
// available: fixed-depth minimax with alpha-beta pruning over material.
package search

import (
	"context"
	"sort"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-room-server/internal/chess/rules"
)

// MateScore saturates evaluations of a checkmated side.
const MateScore = 100000

const infinity = MateScore * 10

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   100,
	nchess.Knight: 320,
	nchess.Bishop: 330,
	nchess.Rook:   500,
	nchess.Queen:  900,
	nchess.King:   0,
}

// Result is the root outcome of a search. Move is "" when the root has no
// move to offer.
type Result struct {
	Move  string
	Score int
	Nodes int
}

// Evaluate sums material from white's point of view.
func Evaluate(pos *nchess.Position) int {
	if pos == nil {
		return 0
	}
	score := 0
	for _, piece := range pos.Board().SquareMap() {
		v := pieceValues[piece.Type()]
		if piece.Color() == nchess.White {
			score += v
		} else {
			score -= v
		}
	}
	return score
}

type bound uint8

const (
	boundExact bound = iota
	boundLower
	boundUpper
)

type nodeKey struct {
	fen   string
	depth int
	max   bool
}

type nodeValue struct {
	score int
	move  string
	bound bound
}

type searcher struct {
	ctx   context.Context
	memo  map[nodeKey]nodeValue
	nodes int
}

// Search returns the best move for the side to move at pos. The memo table
// lives only for this call.
func Search(ctx context.Context, pos *nchess.Position, depth int) (Result, error) {
	if pos == nil || len(rules.LegalMoves(pos)) == 0 {
		return Result{}, nil
	}
	if depth <= 0 {
		return Result{Score: Evaluate(pos), Nodes: 1}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s := &searcher{ctx: ctx, memo: make(map[nodeKey]nodeValue)}
	score, move, err := s.alphaBeta(pos, depth, -infinity, infinity, pos.Turn() == nchess.White, false)
	if err != nil {
		return Result{}, err
	}
	return Result{Move: move, Score: score, Nodes: s.nodes}, nil
}

func (s *searcher) alphaBeta(pos *nchess.Position, depth, alpha, beta int, maximizing, inCheck bool) (int, string, error) {
	s.nodes++
	if s.nodes&1023 == 0 {
		if err := s.ctx.Err(); err != nil {
			return 0, "", err
		}
	}

	moves := rules.LegalMoves(pos)
	if score, ok := terminalScore(pos, moves, inCheck); ok {
		return score, "", nil
	}
	if depth == 0 {
		return Evaluate(pos), "", nil
	}

	key := nodeKey{fen: pos.String(), depth: depth, max: maximizing}
	if v, ok := s.memo[key]; ok {
		switch {
		case v.bound == boundExact:
			return v.score, v.move, nil
		case v.bound == boundLower && v.score >= beta:
			return v.score, v.move, nil
		case v.bound == boundUpper && v.score <= alpha:
			return v.score, v.move, nil
		}
	}

	alphaOrig, betaOrig := alpha, beta
	best := infinity
	if maximizing {
		best = -infinity
	}
	bestMove := ""

	orderMoves(moves)
	for i := range moves {
		mv := &moves[i]
		score, _, err := s.alphaBeta(pos.Update(mv), depth-1, alpha, beta, !maximizing, rules.GivesCheck(mv))
		if err != nil {
			return 0, "", err
		}
		if maximizing {
			if score > best {
				best, bestMove = score, rules.MoveUCI(mv)
			}
			if best > alpha {
				alpha = best
			}
		} else {
			if score < best {
				best, bestMove = score, rules.MoveUCI(mv)
			}
			if best < beta {
				beta = best
			}
		}
		if beta <= alpha {
			break
		}
	}

	b := boundExact
	switch {
	case best <= alphaOrig:
		b = boundUpper
	case best >= betaOrig:
		b = boundLower
	}
	s.memo[key] = nodeValue{score: best, move: bestMove, bound: b}
	return best, bestMove, nil
}

// terminalScore scores positions where the game is over. A side with no
// legal moves in check is mated.
func terminalScore(pos *nchess.Position, moves []nchess.Move, inCheck bool) (int, bool) {
	if len(moves) == 0 {
		if inCheck {
			if pos.Turn() == nchess.White {
				return -MateScore, true
			}
			return MateScore, true
		}
		return Evaluate(pos), true
	}
	if rules.InsufficientMaterial(pos.Board()) || rules.HalfmoveClock(pos.String()) >= 100 {
		return Evaluate(pos), true
	}
	return 0, false
}

// orderMoves puts captures first, keeping generation order otherwise.
func orderMoves(moves []nchess.Move) {
	sort.SliceStable(moves, func(i, j int) bool {
		return rules.IsCapture(&moves[i]) && !rules.IsCapture(&moves[j])
	})
}
