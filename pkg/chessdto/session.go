package chessdto

// RoomState is the snapshot broadcast to every client of a room after each
// change. LastMove is null before the first move.
type RoomState struct {
	ID       string   `json:"id"`
	Mode     string   `json:"mode"`
	BotID    string   `json:"botId"`
	FEN      string   `json:"fen"`
	Moves    []string `json:"moves"`
	LastMove *string  `json:"lastMove"`
	Turn     string   `json:"turn"`
	IsCheck  bool     `json:"isCheck"`
	PGN      string   `json:"pgn"`
}

type GameOver struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}
