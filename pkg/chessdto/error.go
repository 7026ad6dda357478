package chessdto

// Error codes carried by DomainError.
const (
	CodeRoomGone     = "room_gone"
	CodeRoomNotFound = "room_not_found"
	CodeIllegalMove  = "illegal_move"
	CodeWrongTurn    = "wrong_turn"
	CodeNotAllowed   = "not_allowed"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess room error"
}
