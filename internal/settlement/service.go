// Package settlement finalizes terminal sessions exactly once: one
// conditional write to finished, then player ledgers, ratings and archive.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/players"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/rules"
)

// ErrStale means the session moved on (still active) between observation
// and finalize; the caller re-reads and re-evaluates.
var ErrStale = errors.New("session changed before finalize")

type Outcome string

const (
	Committed Outcome = "committed"
	Noop      Outcome = "noop"
)

type Service struct {
	store    docstore.Store
	engine   *rules.Engine
	players  players.Repository
	archiver archive.Archiver

	event string
	site  string
	now   func() time.Time
}

type Option func(*Service)

func WithArchiver(a archive.Archiver) Option {
	return func(s *Service) {
		if a != nil {
			s.archiver = a
		}
	}
}

// WithSite sets the Event and Site headers of archived records.
func WithSite(event, site string) Option {
	return func(s *Service) {
		if event != "" {
			s.event = event
		}
		if site != "" {
			s.site = site
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store docstore.Store, engine *rules.Engine, repo players.Repository, opts ...Option) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		players:  repo,
		archiver: archive.Nop{},
		event:    archive.DefaultEvent,
		site:     archive.DefaultSite,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Finalize commits result/reason on the observed session. It returns the
// session as stored after the call.
func (s *Service) Finalize(ctx context.Context, observed *domain.Session, result domain.Result, reason domain.Reason) (Outcome, *domain.Session, error) {
	if observed.Status == domain.StatusFinished {
		return Noop, observed, nil
	}
	if observed.Status != domain.StatusActive {
		return "", nil, fmt.Errorf("finalize %s: session is %s", observed.ID, observed.Status)
	}

	st, err := s.engine.Replay(observed.Moves)
	if err != nil {
		return "", nil, fmt.Errorf("finalize %s: %w", observed.ID, err)
	}

	white, black, err := s.ratingsBefore(ctx, observed)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	next := observed.Clone()
	next.Status = domain.StatusFinished
	next.Result = result
	next.TerminationReason = reason
	next.FEN = st.FEN()
	next.FinishedAt = now
	next.UpdatedAt = now

	stored, err := s.store.Update(ctx, next, observed.Revision)
	if errors.Is(err, docstore.ErrConflict) {
		metrics.Conflict("finalize")
		cur, gerr := s.store.Get(ctx, observed.ID)
		if gerr != nil {
			return "", nil, fmt.Errorf("finalize %s: re-read: %w", observed.ID, gerr)
		}
		if cur.Status == domain.StatusFinished {
			return Noop, cur, nil
		}
		return "", cur, fmt.Errorf("finalize %s: %w", observed.ID, ErrStale)
	}
	if err != nil {
		return "", nil, fmt.Errorf("finalize %s: %w", observed.ID, err)
	}

	metrics.Settlement(string(reason), string(result))
	obslog.L().Info("settlement_commit",
		zap.String("game_id", stored.ID),
		zap.String("result", string(result)),
		zap.String("reason", string(reason)),
		zap.Int("plies", len(stored.Moves)),
		zap.Int64("revision", stored.Revision),
	)

	s.applyLedger(ctx, stored, white, black)
	s.archive(ctx, stored, st)
	return Committed, stored, nil
}

// ratingsBefore captures both ratings before the commit; casual games keep
// ratings untouched so nothing is read.
func (s *Service) ratingsBefore(ctx context.Context, g *domain.Session) (int, int, error) {
	if !g.Rated {
		return 0, 0, nil
	}
	w, err := s.players.Get(ctx, g.WhiteID)
	if err != nil {
		return 0, 0, fmt.Errorf("load white rating: %w", err)
	}
	b, err := s.players.Get(ctx, g.BlackID)
	if err != nil {
		return 0, 0, fmt.Errorf("load black rating: %w", err)
	}
	return w.Rating, b.Rating, nil
}

func (s *Service) applyLedger(ctx context.Context, g *domain.Session, whiteBefore, blackBefore int) {
	whiteAfter, blackAfter := whiteBefore, blackBefore
	if g.Rated {
		whiteAfter, blackAfter = rating.Update(whiteBefore, blackBefore, g.Result)
	}
	ws, bs := rating.Scores(g.Result)
	settlement := domain.Settlement{
		GameID:    g.ID,
		Rated:     g.Rated,
		White:     domain.SeatOutcome{PlayerID: g.WhiteID, RatingBefore: whiteBefore, RatingAfter: whiteAfter, Score: ws},
		Black:     domain.SeatOutcome{PlayerID: g.BlackID, RatingBefore: blackBefore, RatingAfter: blackAfter, Score: bs},
		Result:    g.Result,
		SettledAt: g.FinishedAt,
	}
	err := s.players.ApplySettlement(ctx, settlement)
	switch {
	case errors.Is(err, players.ErrDuplicateSettlement):
		obslog.L().Warn("settlement_duplicate", zap.String("game_id", g.ID))
	case err != nil:
		obslog.L().Error("settlement_ledger_failed", zap.String("game_id", g.ID), zap.Error(err))
	default:
		if g.Rated {
			obslog.L().Info("rating_update",
				zap.String("game_id", g.ID),
				zap.Int("white_before", whiteBefore), zap.Int("white_after", whiteAfter),
				zap.Int("black_before", blackBefore), zap.Int("black_after", blackAfter),
			)
		}
	}
}

func (s *Service) archive(ctx context.Context, g *domain.Session, st *rules.State) {
	rec := BuildRecord(g, st, s.event, s.site)
	if err := s.archiver.ArchiveGame(ctx, g.ID, rec); err != nil {
		metrics.ArchiveFailure(s.archiver.Name())
		obslog.L().Warn("archive_failed",
			zap.String("game_id", g.ID),
			zap.String("backend", s.archiver.Name()),
			zap.Error(err),
		)
	}
}

// BuildRecord derives the archive record from a finished session and the
// replayed position.
func BuildRecord(g *domain.Session, st *rules.State, event, site string) archive.Record {
	return archive.Record{
		GameID:      g.ID,
		Event:       event,
		Site:        site,
		WhiteID:     g.WhiteID,
		BlackID:     g.BlackID,
		TimeControl: g.TimeControl.String(),
		Rated:       g.Rated,
		Result:      g.Result,
		Termination: g.TerminationReason,
		MovesUCI:    st.Moves(),
		MovesSAN:    st.SAN(),
		FinalFEN:    st.FEN(),
		StartedAt:   g.ActivatedAt,
		EndedAt:     g.FinishedAt,
	}
}
