package settlement

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/termination"
)

const maxStaleRetries = 3

// Evaluator classifies a session; *termination.Detector implements it.
type Evaluator interface {
	Evaluate(s *domain.Session) (termination.Verdict, error)
}

// Resolve evaluates observed and finalizes it when terminal. A stale
// finalize re-evaluates the fresh version a bounded number of times. The
// returned session is the latest one seen.
func (s *Service) Resolve(ctx context.Context, observed *domain.Session, ev Evaluator) (*domain.Session, termination.Verdict, error) {
	cur := observed
	for attempt := 0; ; attempt++ {
		v, err := ev.Evaluate(cur)
		if err != nil {
			return cur, v, err
		}
		if !v.Terminal || cur.Status == domain.StatusFinished {
			return cur, v, nil
		}
		_, next, err := s.Finalize(ctx, cur, v.Result, v.Reason)
		if errors.Is(err, ErrStale) && next != nil && attempt < maxStaleRetries {
			cur = next
			continue
		}
		if err != nil {
			return cur, v, err
		}
		return next, termination.Terminal(next.Result, next.TerminationReason), nil
	}
}
