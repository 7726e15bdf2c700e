package arenapresenter

import (
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/movesync"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Formatter renders session states and refusals into catalog texts.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Formatter{cat: cat}
}

// Summary describes the lifecycle stage of s.
func (f *Formatter) Summary(s *domain.Session) string {
	if s == nil {
		return ""
	}
	switch s.Status {
	case domain.StatusWaiting:
		return f.cat.RenderOr("game.waiting", map[string]any{
			"TimeControl": s.TimeControl.String(),
			"Tier":        s.Tier,
		}, "")
	case domain.StatusActive:
		return f.cat.RenderOr("game.started", map[string]any{
			"White":       s.WhiteID,
			"Black":       s.BlackID,
			"TimeControl": s.TimeControl.String(),
		}, "")
	case domain.StatusFinished:
		winner, loser := "", ""
		switch s.Result {
		case domain.ResultWhiteWin:
			winner, loser = s.WhiteID, s.BlackID
		case domain.ResultBlackWin:
			winner, loser = s.BlackID, s.WhiteID
		}
		return f.cat.RenderOr("game.finished."+string(s.TerminationReason), map[string]any{
			"Winner": winner,
			"Loser":  loser,
		}, string(s.Result))
	}
	return ""
}

func (f *Formatter) Accepted(playerID, move string) string {
	return f.cat.RenderOr("move.accepted", map[string]any{"Player": playerID, "Move": move}, move)
}

func (f *Formatter) Rejected(rej *movesync.Rejection, move string) string {
	if rej == nil {
		return ""
	}
	return f.cat.RenderOr("move.rejected."+string(rej.Reason), map[string]any{"Move": move}, rej.Error())
}

// Text renders a plain catalog key, falling back to the key itself.
func (f *Formatter) Text(key string) string {
	return f.cat.RenderOr(key, nil, key)
}

// Game converts s and attaches its summary.
func (f *Formatter) Game(s *domain.Session) *arenadto.Game {
	g := ToDTOGame(s)
	if g != nil {
		g.Summary = f.Summary(s)
	}
	return g
}
