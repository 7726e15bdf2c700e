// Package observer runs the per-player loop: follow the session document,
// tick the clock while active, and finalize once it turns terminal.
package observer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/settlement"
)

// ErrJoinTimeout is returned when the session is still waiting after the
// join timeout. The waiting document is left for the caller to handle.
var ErrJoinTimeout = errors.New("no opponent joined in time")

type Loop struct {
	store     docstore.Store
	keeper    *clock.Keeper
	evaluator settlement.Evaluator
	settler   *settlement.Service

	interval    time.Duration
	joinTimeout time.Duration
	now         func() time.Time
}

type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithJoinTimeout bounds how long a waiting session is observed; zero waits forever.
func WithJoinTimeout(d time.Duration) Option {
	return func(l *Loop) { l.joinTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

func New(store docstore.Store, evaluator settlement.Evaluator, settler *settlement.Service, opts ...Option) *Loop {
	l := &Loop{
		store:       store,
		keeper:      clock.NewKeeper(store),
		evaluator:   evaluator,
		settler:     settler,
		interval:    time.Second,
		joinTimeout: 2 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run observes gameID until it is finished, ctx ends, or the join timeout
// fires. onUpdate, when set, receives every newer version seen.
func (l *Loop) Run(ctx context.Context, gameID string, onUpdate func(*domain.Session)) (*domain.Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// subscribe before the first read so no write in between is missed
	events, err := l.store.Subscribe(ctx, gameID)
	if err != nil {
		return nil, err
	}
	cur, err := l.store.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}

	var seen int64
	publish := func(s *domain.Session) {
		if s.Revision > seen {
			seen = s.Revision
			if onUpdate != nil {
				onUpdate(s)
			}
		}
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	var joinDeadline <-chan time.Time
	if l.joinTimeout > 0 {
		timer := time.NewTimer(l.joinTimeout)
		defer timer.Stop()
		joinDeadline = timer.C
	}

	for {
		publish(cur)
		cur, err = l.resolve(ctx, cur)
		if err != nil {
			return cur, err
		}
		publish(cur)
		if cur.Status == domain.StatusFinished {
			return cur, nil
		}

		select {
		case <-ctx.Done():
			return cur, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return cur, fmt.Errorf("observe %s: subscription closed", gameID)
			}
			if ev.Revision > cur.Revision {
				cur = ev
			}
		case <-ticker.C:
			cur, err = l.tick(ctx, cur)
			if err != nil {
				return cur, err
			}
		case <-joinDeadline:
			if cur.Status == domain.StatusWaiting {
				obslog.L().Info("observer_join_timeout", zap.String("game_id", gameID))
				return cur, ErrJoinTimeout
			}
		}
	}
}

func (l *Loop) resolve(ctx context.Context, cur *domain.Session) (*domain.Session, error) {
	if cur.Status != domain.StatusActive {
		return cur, nil
	}
	next, _, err := l.settler.Resolve(ctx, cur, l.evaluator)
	if errors.Is(err, settlement.ErrStale) {
		// the subscription delivers the newer version
		return next, nil
	}
	return next, err
}

// tick is a candidate charge; losing the race just means re-reading.
func (l *Loop) tick(ctx context.Context, cur *domain.Session) (*domain.Session, error) {
	if cur.Status != domain.StatusActive {
		return cur, nil
	}
	next, err := l.keeper.Tick(ctx, cur, l.now())
	if errors.Is(err, docstore.ErrConflict) {
		return l.store.Get(ctx, cur.ID)
	}
	if err != nil {
		return cur, err
	}
	return next, nil
}
