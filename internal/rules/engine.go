package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-arena/internal/domain"
)

// StartPosition is the FEN placeholder for the standard initial position.
const StartPosition = "startpos"

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrInvalidSquare = errors.New("invalid square")
)

// State is an opaque position. It is never mutated after construction.
type State struct {
	game *nchess.Game
	uci  []string
	san  []string
}

// FEN returns the Forsyth-Edwards notation of the position.
func (s *State) FEN() string { return s.game.FEN() }

// Moves returns the coordinate moves played from the initial position.
func (s *State) Moves() []string { return append([]string(nil), s.uci...) }

// SAN returns the moves in standard algebraic notation.
func (s *State) SAN() []string { return append([]string(nil), s.san...) }

// Turn returns the side to move.
func (s *State) Turn() domain.Color { return colorFrom(s.game.Position().Turn()) }

// Engine wraps corentings/chess. It is stateless and safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Load returns the position for fen, or the initial position for "" / startpos.
func (e *Engine) Load(fen string) (*State, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == StartPosition {
		return &State{game: nchess.NewGame()}, nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("load fen: %w", err)
	}
	return &State{game: nchess.NewGame(opt)}, nil
}

// Apply plays a coordinate move (e2e4, e7e8q) and returns the next state.
func (e *Engine) Apply(st *State, move string) (*State, error) {
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}
	uci := strings.ToLower(strings.TrimSpace(move))
	if uci == "" {
		return nil, ErrIllegalMove
	}
	if st.game.Outcome() != nchess.NoOutcome {
		return nil, fmt.Errorf("%w: game already decided", ErrIllegalMove)
	}
	game := st.game.Clone()
	prev := game.Position()
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	last := lastMove(game)
	if last == nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	next := &State{
		game: game,
		uci:  append(append([]string(nil), st.uci...), last.String()),
		san:  append(append([]string(nil), st.san...), nchess.AlgebraicNotation{}.Encode(prev, last)),
	}
	return next, nil
}

// Replay rebuilds the position from the initial position and a move list.
// This is the canonical way to recover the board of a session.
func (e *Engine) Replay(moves []string) (*State, error) {
	st, err := e.Load(StartPosition)
	if err != nil {
		return nil, err
	}
	for i, mv := range moves {
		st, err = e.Apply(st, mv)
		if err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return st, nil
}

// IsCheckmate reports whether the side to move is mated.
func (e *Engine) IsCheckmate(st *State) bool {
	return st.game.Method() == nchess.Checkmate
}

// IsStalemate reports whether the side to move has no legal move and is not in check.
func (e *Engine) IsStalemate(st *State) bool {
	return st.game.Method() == nchess.Stalemate
}

// IsThreefoldRepetition reports whether the current position occurred three times.
// Fivefold repetition, which the library declares on its own, is reported
// separately by AutomaticDraw.
func (e *Engine) IsThreefoldRepetition(st *State) bool {
	for _, m := range st.game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition {
			return true
		}
	}
	return false
}

// IsInsufficientMaterial reports whether neither side can mate.
func (e *Engine) IsInsufficientMaterial(st *State) bool {
	return st.game.Method() == nchess.InsufficientMaterial
}

// AutomaticDraw reports draws the library declares without a claim
// (fivefold repetition, seventy-five move rule).
func (e *Engine) AutomaticDraw(st *State) (domain.Reason, bool) {
	switch st.game.Method() {
	case nchess.FivefoldRepetition:
		return domain.ReasonFivefoldRepetition, true
	case nchess.SeventyFiveMoveRule:
		return domain.ReasonSeventyFiveMoveRule, true
	default:
		return "", false
	}
}

// Turn returns the side to move.
func (e *Engine) Turn(st *State) domain.Color { return st.Turn() }

// LegalMoves lists the coordinate moves available from square (e.g. "e2").
// An empty square lists every legal move.
func (e *Engine) LegalMoves(st *State, square string) ([]string, error) {
	square = strings.ToLower(strings.TrimSpace(square))
	if square != "" && !validSquare(square) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSquare, square)
	}
	var out []string
	for _, mv := range st.game.ValidMoves() {
		if square != "" && mv.S1().String() != square {
			continue
		}
		out = append(out, mv.String())
	}
	return out, nil
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}

// CoordinateMove joins from, to and an optional promotion piece.
func CoordinateMove(from, to, promotion string) string {
	return strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
}
