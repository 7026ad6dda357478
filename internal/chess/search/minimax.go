package search

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-room-server/internal/chess/rules"
)

// Minimax is the unpruned, unmemoized reference search. It visits moves in
// the same order as Search, so both agree on the chosen move as well as the
// score.
func Minimax(pos *nchess.Position, depth int) Result {
	if pos == nil || len(rules.LegalMoves(pos)) == 0 {
		return Result{}
	}
	if depth <= 0 {
		return Result{Score: Evaluate(pos), Nodes: 1}
	}
	nodes := 0
	score, move := minimax(pos, depth, pos.Turn() == nchess.White, false, &nodes)
	return Result{Move: move, Score: score, Nodes: nodes}
}

func minimax(pos *nchess.Position, depth int, maximizing, inCheck bool, nodes *int) (int, string) {
	*nodes++
	moves := rules.LegalMoves(pos)
	if score, ok := terminalScore(pos, moves, inCheck); ok {
		return score, ""
	}
	if depth == 0 {
		return Evaluate(pos), ""
	}
	best := infinity
	if maximizing {
		best = -infinity
	}
	bestMove := ""
	orderMoves(moves)
	for i := range moves {
		mv := &moves[i]
		score, _ := minimax(pos.Update(mv), depth-1, !maximizing, rules.GivesCheck(mv), nodes)
		if (maximizing && score > best) || (!maximizing && score < best) {
			best, bestMove = score, rules.MoveUCI(mv)
		}
	}
	return best, bestMove
}
