// Package archive writes finished games to durable storage. Archiving is
// best-effort and never feeds back into the session.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

const (
	DefaultEvent = "Cheese Arena"
	DefaultSite  = "cheese-arena"
)

// Record is the move-annotated game record.
type Record struct {
	GameID      string        `json:"game_id"`
	Event       string        `json:"event"`
	Site        string        `json:"site"`
	Round       string        `json:"round"`
	WhiteID     string        `json:"white_id"`
	BlackID     string        `json:"black_id"`
	TimeControl string        `json:"time_control"`
	Rated       bool          `json:"rated"`
	Result      domain.Result `json:"result"`
	Termination domain.Reason `json:"termination"`
	MovesUCI    []string      `json:"moves_uci"`
	MovesSAN    []string      `json:"moves_san"`
	FinalFEN    string        `json:"final_fen"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
}

// Archiver persists records. Implementations must tolerate a second call
// for the same game id.
type Archiver interface {
	ArchiveGame(ctx context.Context, gameID string, rec Record) error
	Name() string
}

// Reader browses archived records. Only local backends implement it.
type Reader interface {
	Get(ctx context.Context, gameID string) (Record, error)
	List(ctx context.Context, playerID string, limit int) ([]Record, error)
}

// Duration is the wall time between activation and finish.
func (r Record) Duration() time.Duration {
	d := r.EndedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// PGN renders the record with the seven-tag roster plus TimeControl and
// Termination.
func (r Record) PGN() string {
	var b strings.Builder
	date := r.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := r.Result.PGN()
	round := r.Round
	if strings.TrimSpace(round) == "" {
		round = "-"
	}
	writeTag(&b, "Event", orDefault(r.Event, DefaultEvent))
	writeTag(&b, "Site", orDefault(r.Site, DefaultSite))
	writeTag(&b, "Date", fmt.Sprintf("%04d.%02d.%02d", date.Year(), int(date.Month()), date.Day()))
	writeTag(&b, "Round", round)
	writeTag(&b, "White", r.WhiteID)
	writeTag(&b, "Black", r.BlackID)
	writeTag(&b, "Result", result)
	if strings.TrimSpace(r.TimeControl) != "" {
		writeTag(&b, "TimeControl", r.TimeControl)
	}
	if r.Termination != "" {
		writeTag(&b, "Termination", string(r.Termination))
	}
	if r.FinalFEN != "" {
		writeTag(&b, "FinalFEN", r.FinalFEN)
	}
	b.WriteString("\n")

	for i := 0; i < len(r.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(r.MovesSAN[i])))
		if i+1 < len(r.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(r.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func writeTag(b *strings.Builder, name, value string) {
	b.WriteString(fmt.Sprintf("[%s \"%s\"]\n", name, sanitizePGN(value)))
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Header returns the value of a PGN tag, or "" when absent.
func Header(pgn, name string) string {
	prefix := "[" + name + " \""
	for _, line := range strings.Split(pgn, "\n") {
		if strings.HasPrefix(line, prefix) && strings.HasSuffix(line, "\"]") {
			return strings.TrimSuffix(strings.TrimPrefix(line, prefix), "\"]")
		}
	}
	return ""
}
