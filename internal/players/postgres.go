package players

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-arena/internal/domain"
)

// Schema is applied by EnsureSchema; kept idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS arena_players (
	player_id            TEXT PRIMARY KEY,
	rating               INTEGER NOT NULL DEFAULT 1200,
	completed_game_count INTEGER NOT NULL DEFAULT 0,
	wins                 INTEGER NOT NULL DEFAULT 0,
	losses               INTEGER NOT NULL DEFAULT 0,
	draws                INTEGER NOT NULL DEFAULT 0,
	last_played_at       TIMESTAMPTZ,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS arena_settlements (
	game_id      TEXT PRIMARY KEY,
	rated        BOOLEAN NOT NULL,
	result       TEXT NOT NULL,
	white_id     TEXT NOT NULL,
	black_id     TEXT NOT NULL,
	white_delta  INTEGER NOT NULL,
	black_delta  INTEGER NOT NULL,
	settled_at   TIMESTAMPTZ NOT NULL
);`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure players schema: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*domain.Player, error) {
	const query = `
		SELECT
			player_id,
			rating,
			completed_game_count,
			wins,
			losses,
			draws,
			last_played_at,
			updated_at,
			created_at
		FROM arena_players
		WHERE player_id = $1
		LIMIT 1`

	var (
		p          domain.Player
		lastPlayed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Rating,
		&p.CompletedGameCount,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&lastPlayed,
		&p.UpdatedAt,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.NewPlayer(id, time.Time{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player: %w", err)
	}
	p.LastPlayedAt = lastPlayed.Time
	return &p, nil
}

// ApplySettlement records the game id and both seat updates in one
// transaction. Rating changes are applied as deltas so a player settling two
// games at once keeps both.
func (r *repository) ApplySettlement(ctx context.Context, s domain.Settlement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertSettlement = `
		INSERT INTO arena_settlements (
			game_id, rated, result, white_id, black_id, white_delta, black_delta, settled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (game_id) DO NOTHING`
	res, err := tx.ExecContext(ctx, insertSettlement,
		s.GameID, s.Rated, string(s.Result),
		s.White.PlayerID, s.Black.PlayerID,
		s.White.Delta(), s.Black.Delta(),
		s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateSettlement
	}

	const upsertSeat = `
		INSERT INTO arena_players (
			player_id, rating, completed_game_count, wins, losses, draws,
			last_played_at, updated_at, created_at
		)
		VALUES ($1, $2::int + $3::int, 1, $4, $5, $6, $7, $7, $7)
		ON CONFLICT (player_id)
		DO UPDATE SET
			rating = arena_players.rating + $3::int,
			completed_game_count = arena_players.completed_game_count + 1,
			wins = arena_players.wins + $4,
			losses = arena_players.losses + $5,
			draws = arena_players.draws + $6,
			last_played_at = $7,
			updated_at = $7`
	for _, seat := range []domain.SeatOutcome{s.White, s.Black} {
		win, loss, draw := tally(seat.Score)
		if _, err := tx.ExecContext(ctx, upsertSeat,
			seat.PlayerID, domain.DefaultRating, seat.Delta(),
			win, loss, draw, s.SettledAt,
		); err != nil {
			return fmt.Errorf("upsert player %s: %w", seat.PlayerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

func tally(score float64) (win, loss, draw int) {
	switch score {
	case 1:
		return 1, 0, 0
	case 0:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}
