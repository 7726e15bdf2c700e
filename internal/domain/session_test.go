package domain

import (
	"testing"
	"time"
)

func activeSession() *Session {
	return &Session{
		ID:                 "g1",
		WhiteID:            "alice",
		BlackID:            "bob",
		Status:             StatusActive,
		CurrentTurn:        White,
		FEN:                "startpos",
		WhiteTimeRemaining: 300,
		BlackTimeRemaining: 300,
		TimeControl:        TimeControl{InitialSeconds: 300, IncrementSeconds: 5},
		CreatedAt:          time.Unix(0, 0),
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s *Session)
		wantErr bool
	}{
		{"active ok", func(s *Session) {}, false},
		{"turn parity after one move", func(s *Session) { s.Moves = []string{"e2e4"}; s.CurrentTurn = Black }, false},
		{"turn parity broken", func(s *Session) { s.Moves = []string{"e2e4"} }, true},
		{"active empty seat", func(s *Session) { s.BlackID = "" }, true},
		{"waiting one seat", func(s *Session) { s.Status = StatusWaiting; s.BlackID = ""; s.CurrentTurn = "" }, false},
		{"waiting both seats", func(s *Session) { s.Status = StatusWaiting; s.CurrentTurn = "" }, true},
		{"waiting with turn", func(s *Session) { s.Status = StatusWaiting; s.BlackID = "" }, true},
		{"finished without result", func(s *Session) { s.Status = StatusFinished }, true},
		{"finished ok", func(s *Session) {
			s.Status = StatusFinished
			s.Result = ResultDraw
			s.TerminationReason = ReasonStalemate
		}, false},
		{"result while active", func(s *Session) { s.Result = ResultWhiteWin }, true},
		{"negative clock", func(s *Session) { s.WhiteTimeRemaining = -1 }, true},
		{"unknown status", func(s *Session) { s.Status = "paused" }, true},
	}
	for _, tc := range cases {
		s := activeSession()
		tc.mutate(s)
		err := s.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	if !StatusWaiting.CanAdvanceTo(StatusActive) || !StatusActive.CanAdvanceTo(StatusFinished) {
		t.Fatalf("forward transitions rejected")
	}
	if StatusWaiting.CanAdvanceTo(StatusFinished) || StatusFinished.CanAdvanceTo(StatusActive) || StatusActive.CanAdvanceTo(StatusWaiting) {
		t.Fatalf("skip or backward transition accepted")
	}
}

func TestParseTimeControl(t *testing.T) {
	tc, err := ParseTimeControl("300+5")
	if err != nil || tc.InitialSeconds != 300 || tc.IncrementSeconds != 5 {
		t.Fatalf("got %+v err=%v", tc, err)
	}
	if tc.String() != "300+5" {
		t.Fatalf("string = %s", tc.String())
	}
	tc, err = ParseTimeControl("600")
	if err != nil || tc.IncrementSeconds != 0 {
		t.Fatalf("got %+v err=%v", tc, err)
	}
	for _, bad := range []string{"", "0+1", "x+1", "60+-1"} {
		if _, err := ParseTimeControl(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := activeSession()
	s.Moves = []string{"e2e4"}
	cp := s.Clone()
	cp.Moves[0] = "d2d4"
	if s.Moves[0] != "e2e4" {
		t.Fatalf("clone shares moves slice")
	}
}

func TestSetRemainingClamps(t *testing.T) {
	s := activeSession()
	s.SetRemaining(Black, -10)
	if s.BlackTimeRemaining != 0 || s.Remaining(Black) != 0 {
		t.Fatalf("clock not clamped: %d", s.BlackTimeRemaining)
	}
	if s.ColorOf("bob") != Black || s.ColorOf("carol") != "" || s.PlayerFor(White) != "alice" {
		t.Fatalf("seat lookup broken")
	}
}
