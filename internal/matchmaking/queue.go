// Package matchmaking pairs players through the shared store: join the
// oldest compatible waiting game, or create one.
package matchmaking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
)

var validate = validator.New()

// SeatPreference decides the creator's color.
type SeatPreference string

const (
	SeatWhite  SeatPreference = "white"
	SeatBlack  SeatPreference = "black"
	SeatRandom SeatPreference = "random"
)

func ParseSeatPreference(s string) (SeatPreference, error) {
	switch p := SeatPreference(strings.ToLower(strings.TrimSpace(s))); p {
	case SeatWhite, SeatBlack, SeatRandom:
		return p, nil
	case "":
		return SeatWhite, nil
	default:
		return "", fmt.Errorf("unknown seat preference %q", s)
	}
}

type Request struct {
	PlayerID    string      `validate:"required"`
	Tier        domain.Tier `validate:"oneof=beginner intermediate experienced"`
	TimeControl domain.TimeControl
	Rated       bool
}

type Outcome string

const (
	Joined  Outcome = "joined"
	Created Outcome = "created"
	// Reused means the requester already waits in this bucket.
	Reused Outcome = "reused"
)

type Ticket struct {
	GameID  string
	Outcome Outcome
	Color   domain.Color
	Session *domain.Session
}

func (t Ticket) Joined() bool { return t.Outcome == Joined }

type Queue struct {
	store       docstore.Store
	seat        SeatPreference
	maxAttempts int
	now         func() time.Time
	newID       func() string
}

type Option func(*Queue)

func WithSeatPreference(p SeatPreference) Option { return func(q *Queue) { q.seat = p } }

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func NewQueue(store docstore.Store, opts ...Option) *Queue {
	q := &Queue{
		store:       store,
		seat:        SeatWhite,
		maxAttempts: 5,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// FindOrCreateGame runs scan-then-write rounds until it joins, creates or
// reuses a game. It never waits for a future opponent.
//
// A round creates only while the bucket has no waiting game. Once the
// rounds are used up the request creates unconditionally, so contention
// costs a possibly unpaired waiting game, never an error.
func (q *Queue) FindOrCreateGame(ctx context.Context, req Request) (Ticket, error) {
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	if err := validate.Struct(req); err != nil {
		return Ticket{}, fmt.Errorf("invalid matchmaking request: %w", err)
	}
	query := docstore.Query{Rated: req.Rated, TimeControl: req.TimeControl, Tier: req.Tier}

	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		candidates, err := q.store.FindWaiting(ctx, query)
		if err != nil {
			metrics.Matchmaking("failed")
			return Ticket{}, fmt.Errorf("scan waiting games: %w", err)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
				return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
			}
			return candidates[i].ID < candidates[j].ID
		})
		own, others := lo.FilterReject(candidates, func(s *domain.Session, _ int) bool {
			return s.ColorOf(req.PlayerID) != ""
		})

		for _, c := range others {
			t, err := q.join(ctx, c, req.PlayerID)
			if errors.Is(err, docstore.ErrConflict) || errors.Is(err, docstore.ErrNotFound) {
				metrics.Conflict("join")
				continue
			}
			if err != nil {
				metrics.Matchmaking("failed")
				return Ticket{}, err
			}
			return t, nil
		}

		if len(own) > 0 {
			metrics.Matchmaking(string(Reused))
			return Ticket{GameID: own[0].ID, Outcome: Reused, Color: own[0].ColorOf(req.PlayerID), Session: own[0]}, nil
		}

		t, err := q.create(ctx, req, true)
		if errors.Is(err, docstore.ErrBucketChanged) {
			metrics.Conflict("create")
			obslog.L().Debug("matchmaking_rescan", zap.String("player_id", req.PlayerID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			metrics.Matchmaking("failed")
			return Ticket{}, err
		}
		return t, nil
	}

	obslog.L().Info("matchmaking_create_unconditional",
		zap.String("player_id", req.PlayerID),
		zap.String("bucket", query.BucketKey()),
		zap.Int("attempts", q.maxAttempts),
	)
	t, err := q.create(ctx, req, false)
	if err != nil {
		metrics.Matchmaking("failed")
		return Ticket{}, err
	}
	return t, nil
}

func (q *Queue) join(ctx context.Context, c *domain.Session, playerID string) (Ticket, error) {
	now := q.now()
	next := c.Clone()
	color := domain.Black
	if next.WhiteID == "" {
		color = domain.White
		next.WhiteID = playerID
	} else {
		next.BlackID = playerID
	}
	next.Status = domain.StatusActive
	next.CurrentTurn = domain.White
	next.WhiteTimeRemaining = c.TimeControl.InitialSeconds
	next.BlackTimeRemaining = c.TimeControl.InitialSeconds
	next.ClockStampedAt = now
	next.ActivatedAt = now
	next.UpdatedAt = now

	stored, err := q.store.Update(ctx, next, c.Revision)
	if err != nil {
		return Ticket{}, err
	}
	metrics.Matchmaking(string(Joined))
	obslog.L().Info("matchmaking_join",
		zap.String("game_id", stored.ID),
		zap.String("player_id", playerID),
		zap.String("color", string(color)),
		zap.String("bucket", stored.BucketKey()),
	)
	return Ticket{GameID: stored.ID, Outcome: Joined, Color: color, Session: stored}, nil
}

func (q *Queue) create(ctx context.Context, req Request, exclusive bool) (Ticket, error) {
	color, err := q.creatorColor()
	if err != nil {
		return Ticket{}, err
	}
	now := q.now()
	s := &domain.Session{
		ID:                 q.newID(),
		Status:             domain.StatusWaiting,
		FEN:                rules.StartPosition,
		Moves:              []string{},
		WhiteTimeRemaining: req.TimeControl.InitialSeconds,
		BlackTimeRemaining: req.TimeControl.InitialSeconds,
		TimeControl:        req.TimeControl,
		Rated:              req.Rated,
		Tier:               req.Tier,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if color == domain.White {
		s.WhiteID = req.PlayerID
	} else {
		s.BlackID = req.PlayerID
	}
	stored, err := q.store.CreateWaiting(ctx, s, exclusive)
	if err != nil {
		return Ticket{}, err
	}
	metrics.Matchmaking(string(Created))
	obslog.L().Info("matchmaking_create",
		zap.String("game_id", stored.ID),
		zap.String("player_id", req.PlayerID),
		zap.String("color", string(color)),
		zap.String("bucket", stored.BucketKey()),
	)
	return Ticket{GameID: stored.ID, Outcome: Created, Color: color, Session: stored}, nil
}

func (q *Queue) creatorColor() (domain.Color, error) {
	switch q.seat {
	case SeatBlack:
		return domain.Black, nil
	case SeatRandom:
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", fmt.Errorf("random seat: %w", err)
		}
		if b[0]&1 == 1 {
			return domain.Black, nil
		}
		return domain.White, nil
	default:
		return domain.White, nil
	}
}
