package chessdto

import "encoding/json"

// Websocket event names.
const (
	EventJoin         = "join"
	EventSetBot       = "set_bot"
	EventMove         = "move"
	EventUndo         = "undo"
	EventReset        = "reset"
	EventJoined       = "joined"
	EventState        = "state"
	EventGameOver     = "game_over"
	EventErrorMessage = "error_message"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(kind string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Data: raw}, nil
}

type RoomRef struct {
	RoomID string `json:"roomId"`
}

type SetBotRequest struct {
	RoomID string `json:"roomId"`
	BotID  string `json:"botId"`
}

type MoveRequest struct {
	RoomID string `json:"roomId"`
	UCI    string `json:"uci"`
}

type ErrorMessage struct {
	Reason string `json:"reason"`
}

type CreateRoomRequest struct {
	Mode  string `json:"mode"`
	BotID string `json:"botId"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

type EvalResponse struct {
	EvalCP int `json:"evalCp"`
}

type HealthResponse struct {
	OK     bool   `json:"ok"`
	Engine string `json:"engine,omitempty"`
}
