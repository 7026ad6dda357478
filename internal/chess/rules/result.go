package rules

import (
	"fmt"
	"strings"

	"github.com/park285/chess-room-server/internal/domain"
)

// Result scores a finished board: the side to move lost on checkmate,
// everything else is a draw.
func Result(b *Board) string {
	if b.IsCheckmate() {
		if b.Turn() == domain.White {
			return domain.ResultBlackWins
		}
		return domain.ResultWhiteWins
	}
	return domain.ResultDraw
}

// Reason names why the game ended, in fixed priority order.
func Reason(b *Board) string {
	switch {
	case b.IsCheckmate():
		return domain.ReasonCheckmate
	case b.IsStalemate():
		return domain.ReasonStalemate
	case b.IsThreefoldRepetition():
		return domain.ReasonThreefold
	case b.IsInsufficientMaterial():
		return domain.ReasonInsufficientMaterial
	case b.IsDraw():
		return domain.ReasonDraw
	default:
		return domain.ReasonGameOver
	}
}

// Outcome bundles Result and Reason.
func Outcome(b *Board) domain.GameResult {
	return domain.GameResult{Result: Result(b), Reason: Reason(b)}
}

// PGN renders the move text, with SetUp/FEN tags for a custom start and the
// result token once the game is over.
func PGN(b *Board) string {
	var sb strings.Builder
	if b.StartFEN() != StartFEN {
		sb.WriteString("[SetUp \"1\"]\n")
		sb.WriteString(fmt.Sprintf("[FEN \"%s\"]\n\n", b.StartFEN()))
	}

	san := b.SAN()
	number := FullmoveNumber(b.StartFEN())
	blackFirst := strings.Contains(b.StartFEN(), " b ")
	parts := make([]string, 0, len(san)+len(san)/2+1)
	for i, mv := range san {
		whiteToMove := (i%2 == 0) != blackFirst
		switch {
		case i == 0 && blackFirst:
			parts = append(parts, fmt.Sprintf("%d... %s", number, mv))
			number++
		case whiteToMove:
			parts = append(parts, fmt.Sprintf("%d. %s", number, mv))
		default:
			parts = append(parts, mv)
			number++
		}
	}
	if b.IsGameOver() {
		parts = append(parts, Result(b))
	}
	sb.WriteString(strings.Join(parts, " "))
	return sb.String()
}
