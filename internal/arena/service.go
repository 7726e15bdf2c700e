// Package arena composes matchmaking, moves, clocks, termination and
// settlement into the operations a player client calls.
package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/movesync"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/observer"
	"github.com/park285/cheese-arena/internal/players"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/termination"
	"github.com/park285/cheese-arena/internal/tier"
)

var (
	ErrNotAPlayer     = errors.New("player is not seated in this game")
	ErrAlreadyDecided = errors.New("game is already decided")
	ErrBusy           = errors.New("game is busy, retry")
)

const maxWriteRetries = 3

type Service struct {
	store    docstore.Store
	engine   *rules.Engine
	queue    *matchmaking.Queue
	sync     *movesync.Synchronizer
	keeper   *clock.Keeper
	detector *termination.Detector
	settler  *settlement.Service
	players  players.Repository
	loop     *observer.Loop
	now      func() time.Time
}

type Deps struct {
	Store    docstore.Store
	Engine   *rules.Engine
	Queue    *matchmaking.Queue
	Settler  *settlement.Service
	Players  players.Repository
	Observer []observer.Option
}

func New(d Deps) *Service {
	engine := d.Engine
	if engine == nil {
		engine = rules.NewEngine()
	}
	detector := termination.NewDetector(engine)
	s := &Service{
		store:    d.Store,
		engine:   engine,
		queue:    d.Queue,
		sync:     movesync.New(d.Store, engine),
		keeper:   clock.NewKeeper(d.Store),
		detector: detector,
		settler:  d.Settler,
		players:  d.Players,
		now:      time.Now,
	}
	if s.queue == nil {
		s.queue = matchmaking.NewQueue(d.Store)
	}
	s.loop = observer.New(d.Store, detector, d.Settler, d.Observer...)
	return s
}

// FindOrCreateGame classifies the player's tier from their record and
// pairs them through the queue.
func (s *Service) FindOrCreateGame(ctx context.Context, playerID string, tc domain.TimeControl, rated bool) (matchmaking.Ticket, error) {
	p, err := s.players.Get(ctx, strings.TrimSpace(playerID))
	if err != nil {
		return matchmaking.Ticket{}, fmt.Errorf("load player: %w", err)
	}
	return s.queue.FindOrCreateGame(ctx, matchmaking.Request{
		PlayerID:    playerID,
		Tier:        tier.Classify(p.CompletedGameCount),
		TimeControl: tc,
		Rated:       rated,
	})
}

// SubmitMove submits a move on the latest version and finalizes the game
// if the move ended it. Rejections are returned as *movesync.Rejection
// together with the current session.
func (s *Service) SubmitMove(ctx context.Context, gameID string, mv movesync.Move) (*domain.Session, error) {
	for attempt := 1; ; attempt++ {
		cur, err := s.store.Get(ctx, gameID)
		if err != nil {
			return nil, err
		}
		next, err := s.sync.Submit(ctx, cur, mv)
		if errors.Is(err, docstore.ErrConflict) {
			if attempt < maxWriteRetries {
				continue
			}
			return nil, ErrBusy
		}
		if rej, ok := movesync.AsRejection(err); ok {
			if rej.Reason == movesync.TimeExpired {
				next = s.resolveLogged(ctx, next)
			}
			return next, err
		}
		if err != nil {
			return nil, err
		}
		return s.resolve(ctx, next)
	}
}

// Resign records a resignation signal. The signal is refused when the
// observed position is already decided; that outcome is finalized instead.
func (s *Service) Resign(ctx context.Context, gameID, playerID string) (*domain.Session, error) {
	for attempt := 1; ; attempt++ {
		cur, err := s.store.Get(ctx, gameID)
		if err != nil {
			return nil, err
		}
		color := cur.ColorOf(playerID)
		if color == "" {
			return cur, ErrNotAPlayer
		}
		if cur.Status != domain.StatusActive {
			return cur, ErrAlreadyDecided
		}
		v, err := s.detector.Evaluate(cur)
		if err != nil {
			return nil, err
		}
		if v.Terminal {
			return s.resolveLogged(ctx, cur), ErrAlreadyDecided
		}

		next := cur.Clone()
		next.ResignedBy = color
		next.UpdatedAt = s.now()
		stored, err := s.store.Update(ctx, next, cur.Revision)
		if errors.Is(err, docstore.ErrConflict) {
			if attempt < maxWriteRetries {
				continue
			}
			return nil, ErrBusy
		}
		if err != nil {
			return nil, err
		}
		obslog.L().Info("resign_signal", zap.String("game_id", gameID), zap.String("player_id", playerID))
		return s.resolve(ctx, stored)
	}
}

// Tick charges the running clock on behalf of any observer and finalizes a
// timeout.
func (s *Service) Tick(ctx context.Context, gameID string) (*domain.Session, error) {
	cur, err := s.store.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	next, err := s.keeper.Tick(ctx, cur, s.now())
	if errors.Is(err, docstore.ErrConflict) {
		if next, err = s.store.Get(ctx, gameID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return s.resolve(ctx, next)
}

func (s *Service) Game(ctx context.Context, gameID string) (*domain.Session, error) {
	return s.store.Get(ctx, gameID)
}

// Evaluate reports the verdict on the current version without writing.
func (s *Service) Evaluate(ctx context.Context, gameID string) (termination.Verdict, error) {
	cur, err := s.store.Get(ctx, gameID)
	if err != nil {
		return termination.Verdict{}, err
	}
	return s.detector.Evaluate(cur)
}

// LegalMoves lists coordinate moves from square in the current position.
func (s *Service) LegalMoves(ctx context.Context, gameID, square string) ([]string, error) {
	cur, err := s.store.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusActive {
		return []string{}, nil
	}
	st, err := s.engine.Replay(cur.Moves)
	if err != nil {
		return nil, err
	}
	return s.engine.LegalMoves(st, square)
}

func (s *Service) Player(ctx context.Context, playerID string) (*domain.Player, error) {
	return s.players.Get(ctx, playerID)
}

// Observe runs the observer loop for gameID until it finishes.
func (s *Service) Observe(ctx context.Context, gameID string, onUpdate func(*domain.Session)) (*domain.Session, error) {
	return s.loop.Run(ctx, gameID, onUpdate)
}

// resolveLogged resolves on a path that already answers with another error.
// A failed finalize is logged and left to the next observer or tick.
func (s *Service) resolveLogged(ctx context.Context, cur *domain.Session) *domain.Session {
	next, err := s.resolve(ctx, cur)
	if err != nil {
		obslog.L().Warn("resolve_failed", zap.String("game_id", cur.ID), zap.Error(err))
	}
	if next == nil {
		return cur
	}
	return next
}

func (s *Service) resolve(ctx context.Context, cur *domain.Session) (*domain.Session, error) {
	next, _, err := s.settler.Resolve(ctx, cur, s.detector)
	if errors.Is(err, settlement.ErrStale) {
		// another writer is ahead; observers pick up the newer version
		return next, nil
	}
	return next, err
}
