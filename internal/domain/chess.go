package domain

import "strings"

// Mode selects who plays the second seat of a room.
type Mode string

const (
	ModePvP Mode = "pvp"
	ModeBot Mode = "bot"
)

// ParseMode maps free-form input to a Mode; anything unknown is pvp.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeBot:
		return ModeBot
	default:
		return ModePvP
	}
}

// Color is the side to move in FEN notation.
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
)

const (
	ReasonCheckmate            = "Checkmate"
	ReasonStalemate            = "Stalemate"
	ReasonThreefold            = "Threefold repetition"
	ReasonInsufficientMaterial = "Insufficient material"
	ReasonDraw                 = "Draw"
	ReasonGameOver             = "Game over"
)

// GameResult is the payload of a finished game.
type GameResult struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

// BotLevel is one row of the bot strength table.
type BotLevel struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Elo            int    `json:"elo" yaml:"elo"`
	Skill          int    `json:"skill" yaml:"skill"`
	Depth          int    `json:"depth" yaml:"depth"`
	MoveTimeMillis int    `json:"movetime" yaml:"movetime"`
}
