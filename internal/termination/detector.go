package termination

import (
	"fmt"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rules"
)

// Verdict is the classification of a session. The zero value is ongoing.
type Verdict struct {
	Terminal bool
	Result   domain.Result
	Reason   domain.Reason
}

func Ongoing() Verdict { return Verdict{} }

func Terminal(result domain.Result, reason domain.Reason) Verdict {
	return Verdict{Terminal: true, Result: result, Reason: reason}
}

func (v Verdict) String() string {
	if !v.Terminal {
		return "ongoing"
	}
	return fmt.Sprintf("%s (%s)", v.Result, v.Reason)
}

type Detector struct {
	engine *rules.Engine
}

func NewDetector(engine *rules.Engine) *Detector { return &Detector{engine: engine} }

// Evaluate classifies s without touching it. Board outcomes are checked
// before clocks and resignation, so a mate that was committed first wins.
func (d *Detector) Evaluate(s *domain.Session) (Verdict, error) {
	switch s.Status {
	case domain.StatusWaiting:
		return Ongoing(), nil
	case domain.StatusFinished:
		return Terminal(s.Result, s.TerminationReason), nil
	}

	st, err := d.engine.Replay(s.Moves)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate %s: %w", s.ID, err)
	}
	if d.engine.IsCheckmate(st) {
		return Terminal(domain.WinFor(d.engine.Turn(st).Opponent()), domain.ReasonCheckmate), nil
	}
	switch {
	case d.engine.IsStalemate(st):
		return Terminal(domain.ResultDraw, domain.ReasonStalemate), nil
	case d.engine.IsInsufficientMaterial(st):
		return Terminal(domain.ResultDraw, domain.ReasonInsufficientMaterial), nil
	}
	if reason, ok := d.engine.AutomaticDraw(st); ok {
		return Terminal(domain.ResultDraw, reason), nil
	}
	if d.engine.IsThreefoldRepetition(st) {
		return Terminal(domain.ResultDraw, domain.ReasonThreefoldRepetition), nil
	}
	if loser, ok := clock.Expired(s); ok {
		return Terminal(domain.WinFor(loser.Opponent()), domain.ReasonTimeout), nil
	}
	if s.ResignedBy != "" {
		return Terminal(domain.WinFor(s.ResignedBy.Opponent()), domain.ReasonResignation), nil
	}
	return Ongoing(), nil
}
