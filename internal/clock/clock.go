// Package clock implements the per-side countdown. Every function returns a
// new session and leaves its input untouched.
package clock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
)

// Tick charges elapsedSeconds to the side to move, clamped at zero.
// Only active sessions run a clock.
func Tick(s *domain.Session, elapsedSeconds int) *domain.Session {
	next := s.Clone()
	if s.Status != domain.StatusActive || elapsedSeconds <= 0 {
		return next
	}
	next.SetRemaining(s.CurrentTurn, s.Remaining(s.CurrentTurn)-elapsedSeconds)
	return next
}

// ApplyIncrement credits the mover with the time control increment.
func ApplyIncrement(s *domain.Session, mover domain.Color) *domain.Session {
	next := s.Clone()
	if s.TimeControl.IncrementSeconds > 0 {
		next.SetRemaining(mover, s.Remaining(mover)+s.TimeControl.IncrementSeconds)
	}
	return next
}

// Expired reports the first side whose clock reached zero. It flags only;
// finalizing belongs to the settlement path.
func Expired(s *domain.Session) (domain.Color, bool) {
	if s.Status != domain.StatusActive {
		return "", false
	}
	if s.WhiteTimeRemaining <= 0 {
		return domain.White, true
	}
	if s.BlackTimeRemaining <= 0 {
		return domain.Black, true
	}
	return "", false
}

// Elapsed returns the whole seconds since the clock stamp.
func Elapsed(s *domain.Session, now time.Time) int {
	if s.ClockStampedAt.IsZero() || !now.After(s.ClockStampedAt) {
		return 0
	}
	return int(now.Sub(s.ClockStampedAt) / time.Second)
}

// Charge ticks the whole elapsed seconds and advances the stamp by exactly
// that amount, so the sub-second remainder carries to the next charge.
func Charge(s *domain.Session, now time.Time) *domain.Session {
	elapsed := Elapsed(s, now)
	next := Tick(s, elapsed)
	if elapsed > 0 {
		next.ClockStampedAt = s.ClockStampedAt.Add(time.Duration(elapsed) * time.Second)
	}
	return next
}

// Keeper persists clock charges with a conditional write.
type Keeper struct {
	store docstore.Store
}

func NewKeeper(store docstore.Store) *Keeper { return &Keeper{store: store} }

// Tick charges the observed session up to now. It returns the observed
// session unchanged when there is nothing to charge, and docstore.ErrConflict
// when another participant wrote first.
func (k *Keeper) Tick(ctx context.Context, observed *domain.Session, now time.Time) (*domain.Session, error) {
	if observed.Status != domain.StatusActive || Elapsed(observed, now) == 0 {
		return observed, nil
	}
	next := Charge(observed, now)
	next.UpdatedAt = now
	stored, err := k.store.Update(ctx, next, observed.Revision)
	if err != nil {
		return nil, fmt.Errorf("clock tick %s: %w", observed.ID, err)
	}
	if c, ok := Expired(stored); ok {
		obslog.L().Info("clock_expired",
			zap.String("game_id", stored.ID),
			zap.String("color", string(c)),
			zap.Int64("revision", stored.Revision),
		)
	}
	return stored, nil
}
