package domain

import "time"

// DefaultRating is assigned to players without a record.
const DefaultRating = 1200

// Player is the PlayerRecord. Rating changes only through settlement.
type Player struct {
	ID                 string    `json:"id"`
	Rating             int       `json:"rating"`
	CompletedGameCount int       `json:"completed_game_count"`
	Wins               int       `json:"wins"`
	Losses             int       `json:"losses"`
	Draws              int       `json:"draws"`
	LastPlayedAt       time.Time `json:"last_played_at,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewPlayer returns a fresh record with the default rating.
func NewPlayer(id string, now time.Time) *Player {
	return &Player{ID: id, Rating: DefaultRating, CreatedAt: now, UpdatedAt: now}
}

// SeatOutcome is one side of a settlement: the rating captured before the
// game and the rating to store after it.
type SeatOutcome struct {
	PlayerID     string
	RatingBefore int
	RatingAfter  int
	Score        float64
}

// Delta is the rating change; zero for casual games.
func (o SeatOutcome) Delta() int { return o.RatingAfter - o.RatingBefore }

// Settlement is the per-game change applied to both player records.
type Settlement struct {
	GameID    string
	Rated     bool
	White     SeatOutcome
	Black     SeatOutcome
	Result    Result
	SettledAt time.Time
}

// Apply folds one seat of a settlement into the record.
func (p *Player) Apply(o SeatOutcome, settledAt time.Time) {
	p.Rating += o.Delta()
	p.CompletedGameCount++
	switch o.Score {
	case 1:
		p.Wins++
	case 0:
		p.Losses++
	default:
		p.Draws++
	}
	p.LastPlayedAt = settledAt
	p.UpdatedAt = settledAt
}
