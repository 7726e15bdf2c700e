// Package movesync validates and commits a player's move against the
// observed session.
package movesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
)

type Reason string

const (
	NotActive   Reason = "not_active"
	NotYourTurn Reason = "not_your_turn"
	IllegalMove Reason = "illegal_move"
	TimeExpired Reason = "time_expired"
)

// Rejection is a player-visible refusal. The stored document is unchanged,
// except for time_expired where the charged clock is written.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "move rejected: " + string(r.Reason)
	}
	return fmt.Sprintf("move rejected: %s (%s)", r.Reason, r.Detail)
}

// AsRejection unwraps a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Move is a coordinate move request.
type Move struct {
	PlayerID  string
	From      string
	To        string
	Promotion string
}

func (m Move) Coordinate() string { return rules.CoordinateMove(m.From, m.To, m.Promotion) }

type Synchronizer struct {
	store  docstore.Store
	engine *rules.Engine
	now    func() time.Time
}

func New(store docstore.Store, engine *rules.Engine) *Synchronizer {
	return &Synchronizer{store: store, engine: engine, now: time.Now}
}

// Submit validates mv against observed and writes the next version
// conditionally on observed.Revision.
//
// On rejection it returns the session the caller should keep observing and a
// *Rejection. A lost race returns docstore.ErrConflict; the caller re-reads.
func (s *Synchronizer) Submit(ctx context.Context, observed *domain.Session, mv Move) (*domain.Session, error) {
	now := s.now()
	if observed.Status != domain.StatusActive {
		return s.reject(observed, mv, NotActive, string(observed.Status))
	}
	color := observed.ColorOf(mv.PlayerID)
	if color == "" || color != observed.CurrentTurn {
		return s.reject(observed, mv, NotYourTurn, "")
	}

	charged := clock.Charge(observed, now)
	if charged.Remaining(color) <= 0 {
		charged.UpdatedAt = now
		stored, err := s.store.Update(ctx, charged, observed.Revision)
		if err != nil {
			return nil, s.writeFailed(observed, err)
		}
		return s.reject(stored, mv, TimeExpired, "")
	}

	st, err := s.engine.Replay(observed.Moves)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", observed.ID, err)
	}
	coord := mv.Coordinate()
	st, err = s.engine.Apply(st, coord)
	if errors.Is(err, rules.ErrIllegalMove) {
		return s.reject(observed, mv, IllegalMove, coord)
	}
	if err != nil {
		return nil, err
	}

	next := clock.ApplyIncrement(charged, color)
	moves := st.Moves()
	next.Moves = append(next.Moves, moves[len(moves)-1])
	next.FEN = st.FEN()
	next.CurrentTurn = color.Opponent()
	next.ClockStampedAt = now
	next.UpdatedAt = now

	stored, err := s.store.Update(ctx, next, observed.Revision)
	if err != nil {
		return nil, s.writeFailed(observed, err)
	}
	metrics.Move("accepted")
	obslog.L().Info("move_accepted",
		zap.String("game_id", stored.ID),
		zap.String("player_id", mv.PlayerID),
		zap.String("move", coord),
		zap.Int("ply", len(stored.Moves)),
		zap.Int64("revision", stored.Revision),
	)
	return stored, nil
}

func (s *Synchronizer) reject(cur *domain.Session, mv Move, reason Reason, detail string) (*domain.Session, error) {
	metrics.Move(string(reason))
	obslog.L().Info("move_rejected",
		zap.String("game_id", cur.ID),
		zap.String("player_id", mv.PlayerID),
		zap.String("reason", string(reason)),
	)
	return cur, &Rejection{Reason: reason, Detail: detail}
}

func (s *Synchronizer) writeFailed(observed *domain.Session, err error) error {
	if errors.Is(err, docstore.ErrConflict) {
		metrics.Conflict("move")
	}
	return fmt.Errorf("submit move %s: %w", observed.ID, err)
}
