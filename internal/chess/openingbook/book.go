// Package openingbook reads polyglot opening books.
package openingbook

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/chess-room-server/internal/chess/rules"
)

// Result is one book continuation.
type Result struct {
	Move   string
	Weight uint16
}

// Book answers positions from a polyglot file. It is read-only and safe for
// concurrent use.
type Book struct {
	book *chesslib.PolyglotBook
}

// Load opens a polyglot book. An empty path yields (nil, nil): no book.
func Load(path string) (*Book, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()
	return Read(file)
}

func Read(r io.Reader) (*Book, error) {
	book, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book: %w", err)
	}
	return &Book{book: book}, nil
}

// Moves lists the book moves for fen that are legal in it, heaviest first.
func (b *Book) Moves(fen string) ([]Result, error) {
	if b == nil || b.book == nil {
		return nil, nil
	}
	board, err := rules.FromFEN(fen)
	if err != nil {
		return nil, err
	}

	hashStr, err := chesslib.NewZobristHasher().HashPosition(board.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return nil, nil
	}

	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		move := chesslib.DecodeMove(e.Move).ToMove()
		uci := rules.NormalizeUCI(move.String())
		if !board.IsLegal(uci) {
			continue
		}
		out = append(out, Result{Move: uci, Weight: e.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}

// Best returns the heaviest legal book move for fen.
func (b *Book) Best(fen string) (Result, bool) {
	moves, err := b.Moves(fen)
	if err != nil || len(moves) == 0 {
		return Result{}, false
	}
	return moves[0], true
}
