package server

import (
	"errors"

	"github.com/park285/chess-room-server/internal/gameroom"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

type rejection struct {
	err  error
	code string
	key  string
}

var rejections = []rejection{
	{gameroom.ErrRoomGone, chessdto.CodeRoomGone, "room.gone"},
	{gameroom.ErrRoomNotFound, chessdto.CodeRoomNotFound, "room.not_found"},
	{gameroom.ErrIllegalMove, chessdto.CodeIllegalMove, "move.illegal"},
	{gameroom.ErrWrongTurn, chessdto.CodeWrongTurn, "move.wrong_turn"},
	{gameroom.ErrNotAllowed, chessdto.CodeNotAllowed, "undo.not_allowed"},
}

// domainError maps a manager rejection to its wire form with the catalog
// reason text.
func (s *Server) domainError(err error) chessdto.DomainError {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return chessdto.DomainError{Code: r.code, Message: s.catalog.Text(r.key, nil, r.err.Error())}
		}
	}
	return chessdto.DomainError{
		Code:      chessdto.CodeInternal,
		Message:   s.catalog.Text("server.internal", nil, "Internal error"),
		Retryable: true,
	}
}

func (s *Server) badRequest(key string, data any, fallback string) chessdto.DomainError {
	return chessdto.DomainError{Code: chessdto.CodeBadRequest, Message: s.catalog.Text(key, data, fallback)}
}
