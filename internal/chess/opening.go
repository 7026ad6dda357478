package chess

import (
	"sync"

	"github.com/corentings/chess/v2/opening"

	"github.com/park285/chess-room-server/internal/chess/rules"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func ecoCatalog() *opening.BookECO {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	return ecoBook
}

// OpeningLabel names the ECO opening of the moves played so far. Games that
// did not start from the initial position have no label.
func OpeningLabel(b *rules.Board) (code, title string) {
	if b == nil || b.StartFEN() != rules.StartFEN || b.Ply() == 0 {
		return "", ""
	}
	book := ecoCatalog()
	if book == nil {
		return "", ""
	}
	if eco := book.Find(b.Game().Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
