package arenapresenter

import (
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/tier"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func ToDTOGame(s *domain.Session) *arenadto.Game {
	if s == nil {
		return nil
	}
	g := &arenadto.Game{
		ID:          s.ID,
		Status:      string(s.Status),
		WhiteID:     s.WhiteID,
		BlackID:     s.BlackID,
		CurrentTurn: string(s.CurrentTurn),
		FEN:         s.FEN,
		Moves:       append([]string{}, s.Moves...),
		MoveCount:   len(s.Moves),
		Clocks: arenadto.Clocks{
			White:     s.WhiteTimeRemaining,
			Black:     s.BlackTimeRemaining,
			StampedAt: s.ClockStampedAt,
		},
		TimeControl: arenadto.TimeControl{
			InitialSeconds:   s.TimeControl.InitialSeconds,
			IncrementSeconds: s.TimeControl.IncrementSeconds,
			Label:            s.TimeControl.String(),
		},
		Rated:       s.Rated,
		Tier:        string(s.Tier),
		Result:      string(s.Result),
		Termination: string(s.TerminationReason),
		Revision:    s.Revision,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if !s.FinishedAt.IsZero() {
		at := s.FinishedAt
		g.FinishedAt = &at
	}
	return g
}

func ToDTOPlayer(p *domain.Player) *arenadto.Player {
	if p == nil {
		return nil
	}
	out := &arenadto.Player{
		ID:                 p.ID,
		Rating:             p.Rating,
		Tier:               string(tier.Classify(p.CompletedGameCount)),
		CompletedGameCount: p.CompletedGameCount,
		Wins:               p.Wins,
		Losses:             p.Losses,
		Draws:              p.Draws,
	}
	if !p.LastPlayedAt.IsZero() {
		at := p.LastPlayedAt
		out.LastPlayedAt = &at
	}
	return out
}
