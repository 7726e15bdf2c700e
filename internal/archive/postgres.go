package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const Schema = `
CREATE TABLE IF NOT EXISTS arena_games (
	game_id      TEXT PRIMARY KEY,
	white_id     TEXT NOT NULL,
	black_id     TEXT NOT NULL,
	time_control TEXT NOT NULL,
	rated        BOOLEAN NOT NULL,
	result       TEXT NOT NULL,
	termination  TEXT NOT NULL,
	moves_uci    JSONB NOT NULL,
	moves_san    JSONB NOT NULL,
	final_fen    TEXT NOT NULL,
	pgn          TEXT NOT NULL,
	started_at   TIMESTAMPTZ,
	ended_at     TIMESTAMPTZ,
	duration_ms  BIGINT NOT NULL
);`

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the same pool settings used across services.
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// ArchiveGame upserts the record so a retried archive overwrites itself.
func (p *Postgres) ArchiveGame(ctx context.Context, gameID string, rec Record) error {
	movesUCI, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(rec.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}
	const q = `INSERT INTO arena_games (
		game_id, white_id, black_id, time_control, rated,
		result, termination, moves_uci, moves_san, final_fen, pgn,
		started_at, ended_at, duration_ms
	  ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::jsonb,$10,$11,$12,$13,$14
	  ) ON CONFLICT (game_id) DO UPDATE SET
		white_id=EXCLUDED.white_id,
		black_id=EXCLUDED.black_id,
		time_control=EXCLUDED.time_control,
		rated=EXCLUDED.rated,
		result=EXCLUDED.result,
		termination=EXCLUDED.termination,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		final_fen=EXCLUDED.final_fen,
		pgn=EXCLUDED.pgn,
		started_at=EXCLUDED.started_at,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = p.db.ExecContext(ctx, q,
		gameID, rec.WhiteID, rec.BlackID, rec.TimeControl, rec.Rated,
		string(rec.Result), string(rec.Termination), string(movesUCI), string(movesSAN),
		rec.FinalFEN, rec.PGN(),
		rec.StartedAt, rec.EndedAt, rec.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert archived game %s: %w", gameID, err)
	}
	return nil
}
