package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/docstore/docstoretest"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/players"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/termination"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

type fixture struct {
	store   *docstore.Memory
	archive *archive.Memory
	players players.Repository
	settler *settlement.Service
	eval    *termination.Detector
}

func newFixture() *fixture {
	engine := rules.NewEngine()
	f := &fixture{
		store:   docstore.NewMemory(),
		archive: archive.NewMemory(),
		players: players.NewMemoryRepository(),
		eval:    termination.NewDetector(engine),
	}
	f.settler = settlement.NewService(f.store, engine, f.players, settlement.WithArchiver(f.archive))
	return f
}

func (f *fixture) loop(opts ...Option) *Loop {
	opts = append([]Option{WithInterval(5 * time.Millisecond)}, opts...)
	return New(f.store, f.eval, f.settler, opts...)
}

func runWithTimeout(t *testing.T, l *Loop, id string, onUpdate func(*domain.Session)) (*domain.Session, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return l.Run(ctx, id, onUpdate)
}

func TestRun_ClockRunsOut(t *testing.T) {
	f := newFixture()
	s := docstoretest.Active("g1", domain.TimeControl{InitialSeconds: 3})
	s.ClockStampedAt = t0
	docstoretest.Seed(t, f.store, s)

	l := f.loop(WithClock(func() time.Time { return t0.Add(10 * time.Second) }))
	got, err := runWithTimeout(t, l, "g1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, got.Status)
	assert.Equal(t, domain.ResultBlackWin, got.Result)
	assert.Equal(t, domain.ReasonTimeout, got.TerminationReason)
	assert.Equal(t, 0, got.WhiteTimeRemaining)
}

func TestRun_JoinTimeout(t *testing.T) {
	f := newFixture()
	w := docstoretest.Active("g1", domain.TimeControl{InitialSeconds: 60})
	w.Status = domain.StatusWaiting
	w.BlackID = ""
	w.CurrentTurn = ""
	docstoretest.Seed(t, f.store, w)

	got, err := runWithTimeout(t, f.loop(WithJoinTimeout(30*time.Millisecond)), "g1", nil)
	assert.True(t, errors.Is(err, ErrJoinTimeout), "got %v", err)
	assert.Equal(t, domain.StatusWaiting, got.Status)
}

func TestRun_BothObserversFinalizeOnce(t *testing.T) {
	f := newFixture()
	s := docstoretest.Active("g1", domain.TimeControl{InitialSeconds: 600})
	s.ClockStampedAt = t0
	s.Rated = true
	seeded := docstoretest.Seed(t, f.store, s)

	clock := func() time.Time { return t0 }
	var wg sync.WaitGroup
	results := make([]*domain.Session, 2)
	errs := make([]error, 2)
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = runWithTimeout(t, f.loop(WithClock(clock)), "g1", func(*domain.Session) {
				select {
				case started <- struct{}{}:
				default:
				}
			})
		}(i)
	}
	<-started
	<-started

	// a mating sequence lands in the store while both observe
	mated := seeded.Clone()
	mated.Moves = []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	_, err := f.store.Update(context.Background(), mated, seeded.Revision)
	require.NoError(t, err)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.StatusFinished, results[i].Status)
		assert.Equal(t, domain.ReasonCheckmate, results[i].TerminationReason)
	}
	assert.Equal(t, 1, f.archive.Calls())
	alice, _ := f.players.Get(context.Background(), "alice")
	assert.Equal(t, 1, alice.CompletedGameCount)
	assert.Equal(t, 1190, alice.Rating)
}

func TestRun_ReportsUpdates(t *testing.T) {
	f := newFixture()
	s := docstoretest.Active("g1", domain.TimeControl{InitialSeconds: 600})
	s.ClockStampedAt = t0
	s.ResignedBy = domain.Black
	docstoretest.Seed(t, f.store, s)

	var revisions []int64
	got, err := runWithTimeout(t, f.loop(WithClock(func() time.Time { return t0 })), "g1", func(s *domain.Session) {
		revisions = append(revisions, s.Revision)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultWhiteWin, got.Result)
	require.Len(t, revisions, 2)
	assert.Less(t, revisions[0], revisions[1])
}
