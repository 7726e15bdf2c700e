// Package docstore persists GameSession documents and offers the
// conditional writes every participant relies on.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict means the stored revision no longer matches the observed one.
	ErrConflict = errors.New("session revision conflict")
	// ErrBucketChanged means an exclusive create found a waiting game in the
	// bucket.
	ErrBucketChanged = errors.New("matchmaking bucket has a waiting game")
	ErrExists        = errors.New("session already exists")
	// ErrTransition means a write would move a session backwards or rewrite
	// a field that is fixed once the session exists.
	ErrTransition = errors.New("illegal session transition")
)

// Query selects a matchmaking bucket.
type Query struct {
	Rated       bool
	TimeControl domain.TimeControl
	Tier        domain.Tier
}

func (q Query) BucketKey() string { return domain.BucketKey(q.Rated, q.TimeControl, q.Tier) }

// Store is the shared document store.
//
// Update writes next only when the stored revision equals expected and
// stores it with Revision = expected+1. Every backend checks the write
// against the stored version: status only moves forward, a finished
// session is never rewritten, and id, bucket fields and filled seats stay
// as they are.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, next *domain.Session, expected int64) (*domain.Session, error)
	// FindWaiting lists the live waiting sessions of a bucket.
	FindWaiting(ctx context.Context, q Query) ([]*domain.Session, error)
	// CreateWaiting inserts a waiting session. When exclusive is set the
	// insert fails with ErrBucketChanged while any waiting session is live
	// in the same bucket.
	CreateWaiting(ctx context.Context, s *domain.Session, exclusive bool) (*domain.Session, error)
	// Subscribe streams every committed version of the session until ctx ends.
	Subscribe(ctx context.Context, id string) (<-chan *domain.Session, error)
}

const subscriberBuffer = 16

func leavesWaiting(prev, next *domain.Session) bool {
	return prev.Status == domain.StatusWaiting && next.Status != domain.StatusWaiting
}

func checkCreate(s *domain.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Status != domain.StatusWaiting {
		return fmt.Errorf("create: session %s is %s", s.ID, s.Status)
	}
	return nil
}

func checkPayload(next *domain.Session) error {
	if next == nil {
		return errors.New("nil session")
	}
	return next.Validate()
}

// checkWrite validates next as the successor of the stored prev.
func checkWrite(prev, next *domain.Session) error {
	if err := checkPayload(next); err != nil {
		return err
	}
	switch {
	case prev.Status == domain.StatusFinished:
		return fmt.Errorf("%w: %s is finished", ErrTransition, prev.ID)
	case next.Status != prev.Status && !prev.Status.CanAdvanceTo(next.Status):
		return fmt.Errorf("%w: %s cannot go from %s to %s", ErrTransition, prev.ID, prev.Status, next.Status)
	case next.ID != prev.ID:
		return fmt.Errorf("%w: id %s rewritten as %s", ErrTransition, prev.ID, next.ID)
	case next.TimeControl != prev.TimeControl:
		return fmt.Errorf("%w: %s time control is fixed", ErrTransition, prev.ID)
	case next.Rated != prev.Rated:
		return fmt.Errorf("%w: %s rated flag is fixed", ErrTransition, prev.ID)
	case next.Tier != prev.Tier:
		return fmt.Errorf("%w: %s tier is fixed", ErrTransition, prev.ID)
	case prev.WhiteID != "" && next.WhiteID != prev.WhiteID,
		prev.BlackID != "" && next.BlackID != prev.BlackID:
		return fmt.Errorf("%w: %s seats are fixed once filled", ErrTransition, prev.ID)
	}
	return nil
}
