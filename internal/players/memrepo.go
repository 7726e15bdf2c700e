package players

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// memrepo is the in-memory repository used in tests and when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	players map[string]*domain.Player
	settled map[string]domain.Settlement
}

func NewMemoryRepository() Repository {
	return &memrepo{
		players: make(map[string]*domain.Player),
		settled: make(map[string]domain.Settlement),
	}
}

func (m *memrepo) Get(_ context.Context, id string) (*domain.Player, error) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.players[id]; ok {
		cp := *p
		return &cp, nil
	}
	return domain.NewPlayer(id, time.Time{}), nil
}

func (m *memrepo) ApplySettlement(_ context.Context, s domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settled[s.GameID]; ok {
		return ErrDuplicateSettlement
	}
	m.settled[s.GameID] = s
	for _, seat := range []domain.SeatOutcome{s.White, s.Black} {
		p, ok := m.players[seat.PlayerID]
		if !ok {
			p = domain.NewPlayer(seat.PlayerID, s.SettledAt)
			m.players[seat.PlayerID] = p
		}
		p.Apply(seat, s.SettledAt)
	}
	return nil
}
