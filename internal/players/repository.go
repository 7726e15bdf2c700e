// Package players stores PlayerRecords. Ratings and game counts change only
// through ApplySettlement, at most once per game.
package players

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/domain"
)

var ErrDuplicateSettlement = errors.New("settlement already applied")

type Repository interface {
	// Get returns the record, or a default one for an unknown player.
	Get(ctx context.Context, id string) (*domain.Player, error)
	// ApplySettlement folds both seats into their records and returns
	// ErrDuplicateSettlement when the game was already applied.
	ApplySettlement(ctx context.Context, s domain.Settlement) error
}
