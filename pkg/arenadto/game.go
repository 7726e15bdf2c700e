package arenadto

import "time"

type TimeControl struct {
	InitialSeconds   int    `json:"initial_seconds"`
	IncrementSeconds int    `json:"increment_seconds"`
	Label            string `json:"label"`
}

// Clocks holds remaining seconds per side as last written.
type Clocks struct {
	White     int       `json:"white"`
	Black     int       `json:"black"`
	StampedAt time.Time `json:"stamped_at,omitempty"`
}

// Game is the public view of a session document.
type Game struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	WhiteID     string      `json:"white_id,omitempty"`
	BlackID     string      `json:"black_id,omitempty"`
	CurrentTurn string      `json:"current_turn,omitempty"`
	FEN         string      `json:"fen"`
	Moves       []string    `json:"moves"`
	MoveCount   int         `json:"move_count"`
	Clocks      Clocks      `json:"clocks"`
	TimeControl TimeControl `json:"time_control"`
	Rated       bool        `json:"rated"`
	Tier        string      `json:"tier"`
	Result      string      `json:"result,omitempty"`
	Termination string      `json:"termination,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Revision    int64       `json:"revision"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Finished reports whether the game carries a result.
func (g *Game) Finished() bool { return g != nil && g.Status == "finished" }

// FeedFrame is one message on the game websocket.
type FeedFrame struct {
	Type    string `json:"type"`
	Game    *Game  `json:"game,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	FrameGame   = "game"
	FrameClosed = "closed"
	FrameError  = "error"
)
