package archive

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

// Nop logs the archive call and keeps nothing.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) ArchiveGame(_ context.Context, gameID string, rec Record) error {
	obslog.L().Debug("archive_skipped", zap.String("game_id", gameID), zap.String("result", string(rec.Result)))
	return nil
}

// Memory keeps records in process; used by tests and local runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	calls   int
}

func NewMemory() *Memory { return &Memory{records: make(map[string]Record)} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) ArchiveGame(_ context.Context, gameID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.records[gameID] = rec
	return nil
}

func (m *Memory) Get(gameID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[gameID]
	return r, ok
}

// Calls counts ArchiveGame invocations, duplicates included.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
