package rules

import (
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// LegalMoves enumerates the legal moves of pos regardless of draw claims.
// The slice is a copy the caller may reorder.
func LegalMoves(pos *nchess.Position) []nchess.Move {
	if pos == nil {
		return nil
	}
	valid := pos.ValidMoves()
	out := make([]nchess.Move, len(valid))
	copy(out, valid)
	return out
}

// MoveUCI renders a move as origin, destination and optional promotion letter.
func MoveUCI(m *nchess.Move) string {
	if m == nil {
		return ""
	}
	return m.S1().String() + m.S2().String() + promotionLetter(m.Promo())
}

// IsCapture reports whether m removes an enemy piece, en passant included.
func IsCapture(m *nchess.Move) bool {
	return m != nil && (m.HasTag(nchess.Capture) || m.HasTag(nchess.EnPassant))
}

// GivesCheck reports whether m leaves the opponent in check.
func GivesCheck(m *nchess.Move) bool {
	return m != nil && m.HasTag(nchess.Check)
}

func promotionLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}

// NormalizeUCI lowercases and trims client supplied notation.
func NormalizeUCI(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// RepetitionKey strips the move clocks so equal placements compare equal.
func RepetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	return strings.Join(fields[:4], " ")
}

// HalfmoveClock returns the fifty-move counter of a FEN, 0 when absent.
func HalfmoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}

// FullmoveNumber returns the move counter of a FEN, 1 when absent.
func FullmoveNumber(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// InsufficientMaterial reports K v K, K+minor v K, and bishops-only endings
// where every bishop stands on the same square color.
func InsufficientMaterial(board *nchess.Board) bool {
	if board == nil {
		return false
	}
	var (
		others      int
		knights     int
		bishops     int
		lightBishop bool
		darkBishop  bool
	)
	for sq, piece := range board.SquareMap() {
		switch piece.Type() {
		case nchess.King, nchess.NoPieceType:
			continue
		case nchess.Knight:
			knights++
		case nchess.Bishop:
			bishops++
			if (int(sq.File())+int(sq.Rank()))%2 == 0 {
				darkBishop = true
			} else {
				lightBishop = true
			}
		default:
			others++
		}
	}
	switch {
	case others > 0:
		return false
	case knights+bishops == 0:
		return true
	case knights+bishops == 1:
		return true
	case knights == 0 && !(lightBishop && darkBishop):
		return true
	default:
		return false
	}
}
