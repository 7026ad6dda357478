package chess

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/chess-room-server/internal/chess/openingbook"
)

// BookEngine answers bot moves from an opening book while the position is
// covered and defers to the wrapped engine otherwise. Evaluations always go
// to the wrapped engine.
type BookEngine struct {
	Engine
	book   *openingbook.Book
	logger *zap.Logger
}

// WithBook wraps e with book; a nil book returns e unchanged.
func WithBook(e Engine, book *openingbook.Book, logger *zap.Logger) Engine {
	if book == nil {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookEngine{Engine: e, book: book, logger: logger}
}

func (e *BookEngine) Search(ctx context.Context, fen string, opts SearchOptions) (SearchResult, error) {
	if opts.RequireMove {
		if hit, ok := e.book.Best(fen); ok {
			e.logger.Debug("book_move", zap.String("move", hit.Move), zap.Uint16("weight", hit.Weight))
			return SearchResult{BestMove: hit.Move, Book: true}, nil
		}
	}
	return e.Engine.Search(ctx, fen, opts)
}
