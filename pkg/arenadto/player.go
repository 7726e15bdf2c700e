package arenadto

import "time"

type Player struct {
	ID                 string     `json:"id"`
	Rating             int        `json:"rating"`
	Tier               string     `json:"tier"`
	CompletedGameCount int        `json:"completed_game_count"`
	Wins               int        `json:"wins"`
	Losses             int        `json:"losses"`
	Draws              int        `json:"draws"`
	LastPlayedAt       *time.Time `json:"last_played_at,omitempty"`
}
