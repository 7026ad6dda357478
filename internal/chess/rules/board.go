package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-room-server/internal/domain"
)

var ErrIllegalMove = errors.New("illegal move")

// Board is a mutable game: a start position plus the moves applied to it.
type Board struct {
	start string
	game  *nchess.Game
}

func NewBoard() *Board {
	return &Board{start: StartFEN, game: nchess.NewGame()}
}

// FromFEN starts a board at an arbitrary position.
func FromFEN(fen string) (*Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" || fen == StartFEN {
		return NewBoard(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return &Board{start: fen, game: nchess.NewGame(opt)}, nil
}

// Replay rebuilds a board from a start FEN and UCI history.
func Replay(start string, moves []string) (*Board, error) {
	b, err := FromFEN(start)
	if err != nil {
		return nil, err
	}
	for _, mv := range moves {
		if err := b.Apply(mv); err != nil {
			return nil, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	return b, nil
}

func (b *Board) StartFEN() string { return b.start }

func (b *Board) FEN() string { return b.game.FEN() }

func (b *Board) Position() *nchess.Position { return b.game.Position() }

func (b *Board) Turn() domain.Color {
	if b.game.Position().Turn() == nchess.Black {
		return domain.Black
	}
	return domain.White
}

// Ply is the number of half-moves applied since the start position.
func (b *Board) Ply() int { return len(b.game.Moves()) }

// LegalMoves returns UCI notations playable now; a finished game has none.
func (b *Board) LegalMoves() []string {
	if b.IsGameOver() {
		return nil
	}
	moves := LegalMoves(b.game.Position())
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, MoveUCI(&moves[i]))
	}
	return out
}

// IsLegal reports whether uci matches a move playable now.
func (b *Board) IsLegal(uci string) bool {
	_, ok := b.find(uci)
	return ok
}

// Apply plays uci or returns ErrIllegalMove leaving the board untouched.
func (b *Board) Apply(uci string) error {
	mv, ok := b.find(uci)
	if !ok {
		return fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}
	if err := b.game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return nil
}

func (b *Board) find(uci string) (*nchess.Move, bool) {
	want := NormalizeUCI(uci)
	if want == "" || b.IsGameOver() {
		return nil, false
	}
	moves := LegalMoves(b.game.Position())
	for i := range moves {
		if MoveUCI(&moves[i]) == want {
			return &moves[i], true
		}
	}
	return nil, false
}

// Undo takes back the last ply by replaying the rest of the history.
func (b *Board) Undo() bool {
	hist := b.History()
	if len(hist) == 0 {
		return false
	}
	prev, err := Replay(b.start, hist[:len(hist)-1])
	if err != nil {
		return false
	}
	b.game = prev.game
	return true
}

// Reset returns to the standard initial position.
func (b *Board) Reset() {
	b.start = StartFEN
	b.game = nchess.NewGame()
}

// History lists applied moves in UCI notation.
func (b *Board) History() []string {
	moves := b.game.Moves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, MoveUCI(mv))
	}
	return out
}

// LastMove is the most recent UCI move, "" at the start.
func (b *Board) LastMove() string {
	moves := b.game.Moves()
	if len(moves) == 0 {
		return ""
	}
	return MoveUCI(moves[len(moves)-1])
}

// SAN lists applied moves in standard algebraic notation.
func (b *Board) SAN() []string {
	positions := b.game.Positions()
	moves := b.game.Moves()
	out := make([]string, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		if i < len(positions) {
			out[i] = notation.Encode(positions[i], mv)
		}
	}
	return out
}

// Game exposes the underlying game for read-only helpers such as opening lookup.
func (b *Board) Game() *nchess.Game { return b.game }

func (b *Board) IsCheck() bool {
	moves := b.game.Moves()
	if len(moves) == 0 {
		return b.game.Method() == nchess.Checkmate
	}
	return GivesCheck(moves[len(moves)-1])
}

func (b *Board) noMoves() bool {
	return len(LegalMoves(b.game.Position())) == 0
}

func (b *Board) IsCheckmate() bool {
	if b.game.Method() == nchess.Checkmate {
		return true
	}
	return b.noMoves() && b.IsCheck()
}

func (b *Board) IsStalemate() bool {
	if b.game.Method() == nchess.Stalemate {
		return true
	}
	return b.noMoves() && !b.IsCheck()
}

// IsThreefoldRepetition counts earlier occurrences of the current placement,
// side to move, castling rights and en passant square.
func (b *Board) IsThreefoldRepetition() bool {
	current := b.game.Position()
	key := RepetitionKey(current.String())
	count := 1
	for _, pos := range b.game.Positions() {
		if pos == current {
			continue
		}
		if RepetitionKey(pos.String()) == key {
			count++
		}
	}
	return count >= 3
}

func (b *Board) IsInsufficientMaterial() bool {
	if b.game.Method() == nchess.InsufficientMaterial {
		return true
	}
	return InsufficientMaterial(b.game.Position().Board())
}

func (b *Board) IsFiftyMoves() bool {
	return HalfmoveClock(b.FEN()) >= 100
}

func (b *Board) IsDraw() bool {
	if b.game.Outcome() == nchess.Draw {
		return true
	}
	return b.IsFiftyMoves() || b.IsStalemate() || b.IsInsufficientMaterial() || b.IsThreefoldRepetition()
}

func (b *Board) IsGameOver() bool {
	return b.IsCheckmate() || b.IsDraw()
}
