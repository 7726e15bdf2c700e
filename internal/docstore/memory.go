package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/park285/cheese-arena/internal/domain"
)

// Memory is an in-process Store used by tests and single-node runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*domain.Session
	subs map[string]map[chan *domain.Session]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*domain.Session),
		subs: make(map[string]map[chan *domain.Session]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Update(_ context.Context, next *domain.Session, expected int64) (*domain.Session, error) {
	if err := checkPayload(next); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[next.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Revision != expected {
		return nil, fmt.Errorf("%w: %s at %d, expected %d", ErrConflict, next.ID, cur.Revision, expected)
	}
	if err := checkWrite(cur, next); err != nil {
		return nil, err
	}
	stored := next.Clone()
	stored.Revision = expected + 1
	m.docs[stored.ID] = stored
	m.publishLocked(stored)
	return stored.Clone(), nil
}

func (m *Memory) FindWaiting(_ context.Context, q Query) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waitingLocked(q.BucketKey()), nil
}

func (m *Memory) waitingLocked(bucket string) []*domain.Session {
	var out []*domain.Session
	for _, s := range m.docs {
		if s.Status == domain.StatusWaiting && s.BucketKey() == bucket {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (m *Memory) CreateWaiting(_ context.Context, s *domain.Session, exclusive bool) (*domain.Session, error) {
	if err := checkCreate(s); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[s.ID]; ok {
		return nil, ErrExists
	}
	if exclusive && len(m.waitingLocked(s.BucketKey())) > 0 {
		return nil, ErrBucketChanged
	}
	stored := s.Clone()
	stored.Revision = 1
	m.docs[stored.ID] = stored
	m.publishLocked(stored)
	return stored.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, id string) (<-chan *domain.Session, error) {
	ch := make(chan *domain.Session, subscriberBuffer)
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[chan *domain.Session]struct{})
	}
	m.subs[id][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[id], ch)
		if len(m.subs[id]) == 0 {
			delete(m.subs, id)
		}
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// publishLocked fans out without blocking; a slow subscriber misses
// intermediate versions and re-reads on the next one.
func (m *Memory) publishLocked(s *domain.Session) {
	for ch := range m.subs[s.ID] {
		select {
		case ch <- s.Clone():
		default:
		}
	}
}
