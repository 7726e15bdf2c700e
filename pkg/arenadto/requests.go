package arenadto

type FindGameRequest struct {
	PlayerID    string `json:"player_id" validate:"required,max=128"`
	TimeControl string `json:"time_control"`
	Rated       bool   `json:"rated"`
}

type FindGameResponse struct {
	GameID  string `json:"game_id"`
	Outcome string `json:"outcome"`
	Color   string `json:"color"`
	Message string `json:"message"`
	Game    *Game  `json:"game"`
}

type MoveRequest struct {
	PlayerID  string `json:"player_id" validate:"required"`
	From      string `json:"from" validate:"required,len=2"`
	To        string `json:"to" validate:"required,len=2"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
}

type ResignRequest struct {
	PlayerID string `json:"player_id" validate:"required"`
}

// MoveResponse carries the current document. Rejected is set with a reason
// code when the move was refused; the document is then unchanged by it.
type MoveResponse struct {
	Accepted bool   `json:"accepted"`
	Rejected string `json:"rejected,omitempty"`
	Message  string `json:"message"`
	Game     *Game  `json:"game"`
}

type VerdictResponse struct {
	Terminal bool   `json:"terminal"`
	Result   string `json:"result,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type LegalMovesResponse struct {
	Square string   `json:"square"`
	Moves  []string `json:"moves"`
}
