package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Status represents the GameSession lifecycle.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// rank orders statuses; transitions only ever go up.
func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusActive:
		return 2
	case StatusFinished:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo reports whether next is a legal forward transition from s.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() == s.rank()+1
}

type Result string

const (
	ResultWhiteWin Result = "white_win"
	ResultBlackWin Result = "black_win"
	ResultDraw     Result = "draw"
)

// WinFor returns the winning result for the given side.
func WinFor(c Color) Result {
	if c == White {
		return ResultWhiteWin
	}
	return ResultBlackWin
}

// PGN maps a result to its PGN token.
func (r Result) PGN() string {
	switch r {
	case ResultWhiteWin:
		return "1-0"
	case ResultBlackWin:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// Reason is the termination classification.
type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonStalemate            Reason = "stalemate"
	ReasonInsufficientMaterial Reason = "insufficient_material"
	ReasonThreefoldRepetition  Reason = "threefold_repetition"
	ReasonFivefoldRepetition   Reason = "fivefold_repetition"
	ReasonSeventyFiveMoveRule  Reason = "seventy_five_move_rule"
	ReasonTimeout              Reason = "timeout"
	ReasonResignation          Reason = "resignation"
)

// Tier is a coarse skill bucket used only for matchmaking eligibility.
type Tier string

const (
	TierBeginner     Tier = "beginner"
	TierIntermediate Tier = "intermediate"
	TierExperienced  Tier = "experienced"
)

// TimeControl is fixed at game creation.
type TimeControl struct {
	InitialSeconds   int `json:"initial_seconds" bson:"initial_seconds" validate:"gt=0"`
	IncrementSeconds int `json:"increment_seconds" bson:"increment_seconds" validate:"gte=0"`
}

// String renders the PGN TimeControl form, e.g. "300+5".
func (tc TimeControl) String() string {
	return fmt.Sprintf("%d+%d", tc.InitialSeconds, tc.IncrementSeconds)
}

// ParseTimeControl accepts "<initial>+<increment>" in seconds.
func ParseTimeControl(s string) (TimeControl, error) {
	base, inc, ok := strings.Cut(strings.TrimSpace(s), "+")
	if !ok {
		inc = "0"
	}
	initial, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil || initial <= 0 {
		return TimeControl{}, fmt.Errorf("invalid time control %q", s)
	}
	increment, err := strconv.Atoi(strings.TrimSpace(inc))
	if err != nil || increment < 0 {
		return TimeControl{}, fmt.Errorf("invalid time control %q", s)
	}
	return TimeControl{InitialSeconds: initial, IncrementSeconds: increment}, nil
}

// Session is the shared GameSession document.
type Session struct {
	ID string `json:"id" bson:"_id"`

	WhiteID string `json:"white_id,omitempty" bson:"white_id,omitempty"`
	BlackID string `json:"black_id,omitempty" bson:"black_id,omitempty"`

	Status      Status `json:"status" bson:"status"`
	CurrentTurn Color  `json:"current_turn,omitempty" bson:"current_turn,omitempty"`

	FEN   string   `json:"fen" bson:"fen"`
	Moves []string `json:"moves" bson:"moves"`

	WhiteTimeRemaining int       `json:"white_time_remaining" bson:"white_time_remaining"`
	BlackTimeRemaining int       `json:"black_time_remaining" bson:"black_time_remaining"`
	ClockStampedAt     time.Time `json:"clock_stamped_at,omitempty" bson:"clock_stamped_at,omitempty"`

	TimeControl TimeControl `json:"time_control" bson:"time_control"`
	Rated       bool        `json:"rated" bson:"rated"`
	Tier        Tier        `json:"tier" bson:"tier"`

	ResignedBy        Color  `json:"resigned_by,omitempty" bson:"resigned_by,omitempty"`
	Result            Result `json:"result,omitempty" bson:"result,omitempty"`
	TerminationReason Reason `json:"termination_reason,omitempty" bson:"termination_reason,omitempty"`

	Revision int64 `json:"revision" bson:"revision"`

	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	ActivatedAt time.Time `json:"activated_at,omitempty" bson:"activated_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// Clone returns a deep copy so callers can derive a next version without
// touching the observed one.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Moves = append([]string(nil), s.Moves...)
	return &cp
}

// ColorOf returns the seat held by playerID, or "" when not seated.
func (s *Session) ColorOf(playerID string) Color {
	switch {
	case playerID == "":
		return ""
	case s.WhiteID == playerID:
		return White
	case s.BlackID == playerID:
		return Black
	default:
		return ""
	}
}

// PlayerFor returns the id seated on color c.
func (s *Session) PlayerFor(c Color) string {
	if c == White {
		return s.WhiteID
	}
	return s.BlackID
}

// Remaining returns the clock of color c.
func (s *Session) Remaining(c Color) int {
	if c == White {
		return s.WhiteTimeRemaining
	}
	return s.BlackTimeRemaining
}

// SetRemaining overwrites the clock of color c, clamped at zero.
func (s *Session) SetRemaining(c Color, seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	if c == White {
		s.WhiteTimeRemaining = seconds
	} else {
		s.BlackTimeRemaining = seconds
	}
}

// BucketKey identifies the matchmaking bucket (rated, time control, tier).
func (s *Session) BucketKey() string {
	return BucketKey(s.Rated, s.TimeControl, s.Tier)
}

// BucketKey builds the matchmaking bucket identifier.
func BucketKey(rated bool, tc TimeControl, tier Tier) string {
	r := "casual"
	if rated {
		r = "rated"
	}
	return r + ":" + tc.String() + ":" + string(tier)
}

// Validate checks the document invariants.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("nil session")
	}
	if s.ID == "" {
		return fmt.Errorf("session id required")
	}
	switch s.Status {
	case StatusWaiting:
		if (s.WhiteID == "") == (s.BlackID == "") {
			return fmt.Errorf("waiting session %s must have exactly one seat filled", s.ID)
		}
		if s.CurrentTurn != "" {
			return fmt.Errorf("waiting session %s has a current turn", s.ID)
		}
	case StatusActive, StatusFinished:
		if s.WhiteID == "" || s.BlackID == "" {
			return fmt.Errorf("session %s has an empty seat", s.ID)
		}
	default:
		return fmt.Errorf("session %s has unknown status %q", s.ID, s.Status)
	}
	if s.Status == StatusActive {
		want := White
		if len(s.Moves)%2 == 1 {
			want = Black
		}
		if s.CurrentTurn != want {
			return fmt.Errorf("session %s: turn %s does not match %d moves", s.ID, s.CurrentTurn, len(s.Moves))
		}
	}
	finished := s.Status == StatusFinished
	if finished != (s.Result != "") || finished != (s.TerminationReason != "") {
		return fmt.Errorf("session %s: result/reason must be set iff finished", s.ID)
	}
	if s.WhiteTimeRemaining < 0 || s.BlackTimeRemaining < 0 {
		return fmt.Errorf("session %s has a negative clock", s.ID)
	}
	return nil
}
