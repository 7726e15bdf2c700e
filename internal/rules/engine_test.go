package rules

import (
	"errors"
	"sort"
	"testing"

	"github.com/park285/cheese-arena/internal/domain"
)

func replay(t *testing.T, moves ...string) *State {
	t.Helper()
	st, err := NewEngine().Replay(moves)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	return st
}

func TestApply_FoolsMate(t *testing.T) {
	e := NewEngine()
	st := replay(t, "f2f3", "e7e5", "g2g4", "d8h4")
	if !e.IsCheckmate(st) {
		t.Fatalf("expected checkmate, fen=%s", st.FEN())
	}
	if e.IsStalemate(st) {
		t.Fatalf("checkmate must not be stalemate")
	}
	if got := e.Turn(st); got != domain.White {
		t.Fatalf("turn = %s, want white", got)
	}
	san := st.SAN()
	if len(san) != 4 || san[3] != "Qh4#" {
		t.Fatalf("unexpected san: %v", san)
	}
}

func TestApply_IllegalMove(t *testing.T) {
	e := NewEngine()
	st, err := e.Load(StartPosition)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, mv := range []string{"e2e5", "e7e5", "", "zz"} {
		if _, err := e.Apply(st, mv); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("move %q: err = %v, want ErrIllegalMove", mv, err)
		}
	}
	if len(st.Moves()) != 0 {
		t.Fatalf("input state mutated: %v", st.Moves())
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	e := NewEngine()
	st := replay(t, "e2e4")
	before := st.FEN()
	next, err := e.Apply(st, "e7e5")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if st.FEN() != before {
		t.Fatalf("input FEN changed")
	}
	if len(next.Moves()) != 2 || next.Turn() != domain.White {
		t.Fatalf("unexpected next state: %v %s", next.Moves(), next.Turn())
	}
}

func TestStalemate(t *testing.T) {
	e := NewEngine()
	st := replay(t,
		"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5",
		"h2h4", "a6h6", "a5c7", "f7f6", "c7d7", "e8f7",
		"d7b7", "d8d3", "b7b8", "d3h7", "b8c8", "f7g6",
		"c8e6",
	)
	if !e.IsStalemate(st) {
		t.Fatalf("expected stalemate, fen=%s", st.FEN())
	}
	if e.IsCheckmate(st) {
		t.Fatalf("stalemate must not be checkmate")
	}
}

func TestThreefoldRepetition(t *testing.T) {
	e := NewEngine()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	st := replay(t, shuffle...)
	if e.IsThreefoldRepetition(st) {
		t.Fatalf("two occurrences must not count")
	}
	st = replay(t, append(shuffle, shuffle...)...)
	if !e.IsThreefoldRepetition(st) {
		t.Fatalf("expected threefold repetition")
	}
}

func TestInsufficientMaterial(t *testing.T) {
	e := NewEngine()
	st, err := e.Load("8/8/8/4k3/8/8/3p4/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st, err = e.Apply(st, "e1d2")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !e.IsInsufficientMaterial(st) {
		t.Fatalf("expected insufficient material, fen=%s", st.FEN())
	}
}

func TestLegalMoves(t *testing.T) {
	e := NewEngine()
	st, _ := e.Load("")
	got, err := e.LegalMoves(st, "e2")
	if err != nil {
		t.Fatalf("legal moves: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "e2e3" || got[1] != "e2e4" {
		t.Fatalf("unexpected moves: %v", got)
	}
	all, _ := e.LegalMoves(st, "")
	if len(all) != 20 {
		t.Fatalf("initial position has %d moves, want 20", len(all))
	}
	if _, err := e.LegalMoves(st, "j9"); !errors.Is(err, ErrInvalidSquare) {
		t.Fatalf("err = %v, want ErrInvalidSquare", err)
	}
}

func TestCoordinateMove(t *testing.T) {
	if got := CoordinateMove("E7", "e8", "Q"); got != "e7e8q" {
		t.Fatalf("got %q", got)
	}
}
