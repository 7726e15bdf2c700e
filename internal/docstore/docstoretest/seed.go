// Package docstoretest provides helpers for tests that need sessions in a
// given state without going through matchmaking.
package docstoretest

import (
	"context"
	"testing"

	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
)

// Seed stores s through the waiting → active → finished path and returns
// the stored version. A waiting session is only created.
func Seed(t testing.TB, store docstore.Store, s *domain.Session) *domain.Session {
	t.Helper()
	ctx := context.Background()

	w := s.Clone()
	w.Status = domain.StatusWaiting
	w.CurrentTurn = ""
	w.Moves = nil
	w.Result = ""
	w.TerminationReason = ""
	w.ResignedBy = ""
	if s.Status != domain.StatusWaiting {
		w.BlackID = ""
	}
	stored, err := store.CreateWaiting(ctx, w, false)
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}
	if s.Status == domain.StatusWaiting {
		return stored
	}
	if s.Status == domain.StatusFinished {
		a := s.Clone()
		a.Status = domain.StatusActive
		a.Result = ""
		a.TerminationReason = ""
		a.CurrentTurn = domain.White
		if len(a.Moves)%2 == 1 {
			a.CurrentTurn = domain.Black
		}
		if stored, err = store.Update(ctx, a, stored.Revision); err != nil {
			t.Fatalf("seed activate: %v", err)
		}
	}
	stored, err = store.Update(ctx, s.Clone(), stored.Revision)
	if err != nil {
		t.Fatalf("seed %s: %v", s.Status, err)
	}
	return stored
}

// Active returns a fresh active session between alice (white) and bob
// (black) with both clocks at the initial seconds.
func Active(id string, tc domain.TimeControl) *domain.Session {
	return &domain.Session{
		ID:                 id,
		WhiteID:            "alice",
		BlackID:            "bob",
		Status:             domain.StatusActive,
		CurrentTurn:        domain.White,
		FEN:                "startpos",
		Moves:              []string{},
		WhiteTimeRemaining: tc.InitialSeconds,
		BlackTimeRemaining: tc.InitialSeconds,
		TimeControl:        tc,
		Tier:               domain.TierBeginner,
	}
}
