package gameroom

import (
	"context"
	"sync"
	"time"

	"github.com/park285/chess-room-server/internal/chess"
	"github.com/park285/chess-room-server/internal/chess/rules"
	"github.com/park285/chess-room-server/internal/domain"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

// Rejections. The text is the reason shown to clients when no catalog
// message overrides it.
var (
	ErrRoomGone     = errf("Room gone")
	ErrRoomNotFound = errf("Room not found")
	ErrIllegalMove  = errf("Illegal move")
	ErrWrongTurn    = errf("Not your turn")
	ErrNotAllowed   = errf("Not allowed")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Requester hands positions to the engine queue. Failures come back as an
// empty result.
type Requester interface {
	Request(ctx context.Context, fen string, opts chess.SearchOptions) chess.SearchResult
}

// Notifier receives room events in the order they happen.
type Notifier interface {
	RoomState(roomID string, state chessdto.RoomState)
	GameOver(roomID string, result chessdto.GameOver)
}

type nopNotifier struct{}

func (nopNotifier) RoomState(string, chessdto.RoomState) {}
func (nopNotifier) GameOver(string, chessdto.GameOver)   {}

// Room is one game session. Every field is guarded by mu.
type Room struct {
	mu sync.Mutex

	id        string
	mode      domain.Mode
	botID     string
	board     *rules.Board
	moves     []string
	lastMove  string
	white     string
	black     string
	createdAt time.Time
	touched   time.Time

	// gen advances on every change to the board; replyGen is the generation
	// a pending bot reply was scheduled for.
	gen      uint64
	replyGen uint64
}

func (r *Room) replyPending() bool { return r.replyGen != 0 && r.replyGen == r.gen }

func (r *Room) seatOf(participantID string) (domain.Color, bool) {
	switch {
	case participantID == "":
		return "", false
	case participantID == r.white:
		return domain.White, true
	case participantID == r.black:
		return domain.Black, true
	}
	return "", false
}

func (r *Room) syncHistory() {
	r.moves = r.board.History()
	r.lastMove = r.board.LastMove()
}

func (r *Room) state() chessdto.RoomState {
	st := chessdto.RoomState{
		ID:      r.id,
		Mode:    string(r.mode),
		BotID:   r.botID,
		FEN:     r.board.FEN(),
		Moves:   append([]string{}, r.moves...),
		Turn:    string(r.board.Turn()),
		IsCheck: r.board.IsCheck(),
		PGN:     rules.PGN(r.board),
	}
	if r.lastMove != "" {
		last := r.lastMove
		st.LastMove = &last
	}
	return st
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{
		ID:        r.id,
		Mode:      string(r.mode),
		BotID:     r.botID,
		StartFEN:  r.board.StartFEN(),
		Moves:     append([]string(nil), r.moves...),
		White:     r.white,
		Black:     r.black,
		CreatedAt: r.createdAt,
	}
}

// Seats reports the participants holding white and black.
type Seats struct {
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`
}
