package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
)

var blitz = domain.TimeControl{InitialSeconds: 180, IncrementSeconds: 2}

func request(player string) Request {
	return Request{PlayerID: player, Tier: domain.TierBeginner, TimeControl: blitz}
}

func stores(t *testing.T) map[string]docstore.Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]docstore.Store{
		"memory": docstore.NewMemory(),
		"redis":  docstore.NewRedis(rdb),
	}
}

func TestFindOrCreate_CreateThenJoin(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(store)

			first, err := q.FindOrCreateGame(ctx, request("alice"))
			require.NoError(t, err)
			assert.Equal(t, Created, first.Outcome)
			assert.Equal(t, domain.White, first.Color)
			assert.Equal(t, domain.StatusWaiting, first.Session.Status)

			second, err := q.FindOrCreateGame(ctx, request("bob"))
			require.NoError(t, err)
			assert.True(t, second.Joined())
			assert.Equal(t, first.GameID, second.GameID)
			assert.Equal(t, domain.Black, second.Color)

			s := second.Session
			assert.Equal(t, domain.StatusActive, s.Status)
			assert.Equal(t, domain.White, s.CurrentTurn)
			assert.Equal(t, blitz.InitialSeconds, s.WhiteTimeRemaining)
			assert.Equal(t, blitz.InitialSeconds, s.BlackTimeRemaining)
			assert.False(t, s.ActivatedAt.IsZero())
			assert.Empty(t, s.Moves)
		})
	}
}

func TestFindOrCreate_ConcurrentCallersPair(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(store, WithMaxAttempts(10))

			var wg sync.WaitGroup
			tickets := make([]Ticket, 2)
			errs := make([]error, 2)
			for i, player := range []string{"alice", "bob"} {
				wg.Add(1)
				go func(i int, player string) {
					defer wg.Done()
					tickets[i], errs[i] = q.FindOrCreateGame(ctx, request(player))
				}(i, player)
			}
			wg.Wait()
			require.NoError(t, errs[0])
			require.NoError(t, errs[1])

			outcomes := []Outcome{tickets[0].Outcome, tickets[1].Outcome}
			assert.ElementsMatch(t, []Outcome{Created, Joined}, outcomes)
			assert.Equal(t, tickets[0].GameID, tickets[1].GameID)

			got, err := store.Get(ctx, tickets[0].GameID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusActive, got.Status)
			assert.ElementsMatch(t, []string{"alice", "bob"}, []string{got.WhiteID, got.BlackID})
		})
	}
}

func TestFindOrCreate_NeverJoinsOwnGame(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(store)
			first, err := q.FindOrCreateGame(ctx, request("alice"))
			require.NoError(t, err)

			again, err := q.FindOrCreateGame(ctx, request("alice"))
			require.NoError(t, err)
			assert.Equal(t, Reused, again.Outcome)
			assert.Equal(t, first.GameID, again.GameID)

			list, err := store.FindWaiting(ctx, docstore.Query{TimeControl: blitz, Tier: domain.TierBeginner})
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestFindOrCreate_ManyConcurrentCallers(t *testing.T) {
	const callers = 40
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(store)

			var wg sync.WaitGroup
			tickets := make([]Ticket, callers)
			errs := make([]error, callers)
			start := make(chan struct{})
			for i := range callers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					tickets[i], errs[i] = q.FindOrCreateGame(ctx, request(fmt.Sprintf("p%02d", i)))
				}(i)
			}
			close(start)
			wg.Wait()

			games := make(map[string]*domain.Session)
			for i, tk := range tickets {
				require.NoError(t, errs[i], "caller %d", i)
				if _, ok := games[tk.GameID]; ok {
					continue
				}
				got, err := store.Get(ctx, tk.GameID)
				require.NoError(t, err)
				games[tk.GameID] = got
			}

			seats := make(map[string]int)
			active := 0
			for id, g := range games {
				if g.Status == domain.StatusActive {
					active++
					assert.NotEqual(t, g.WhiteID, g.BlackID, "game %s", id)
				}
				for _, p := range []string{g.WhiteID, g.BlackID} {
					if p != "" {
						seats[p]++
					}
				}
			}
			for i, tk := range tickets {
				player := fmt.Sprintf("p%02d", i)
				assert.Equal(t, 1, seats[player], "%s seated %d times", player, seats[player])
				assert.Equal(t, tk.Color, games[tk.GameID].ColorOf(player), "%s", player)
			}
			assert.Len(t, seats, callers)
			assert.Positive(t, active)

			waiting, err := store.FindWaiting(ctx, docstore.Query{TimeControl: blitz, Tier: domain.TierBeginner})
			require.NoError(t, err)
			assert.Equal(t, callers-2*active, len(waiting))
		})
	}
}

func TestFindOrCreate_PrefersOpponentOverOwnGame(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Unix(1_700_000_000, 0).UTC()
			waiting := func(id, white string, created time.Time) *domain.Session {
				return &domain.Session{
					ID:                 id,
					WhiteID:            white,
					Status:             domain.StatusWaiting,
					FEN:                "startpos",
					Moves:              []string{},
					WhiteTimeRemaining: blitz.InitialSeconds,
					BlackTimeRemaining: blitz.InitialSeconds,
					TimeControl:        blitz,
					Tier:               domain.TierBeginner,
					CreatedAt:          created,
					UpdatedAt:          created,
				}
			}
			_, err := store.CreateWaiting(ctx, waiting("bob-game", "bob", base), false)
			require.NoError(t, err)
			_, err = store.CreateWaiting(ctx, waiting("alice-game", "alice", base.Add(time.Minute)), false)
			require.NoError(t, err)

			tk, err := NewQueue(store).FindOrCreateGame(ctx, request("alice"))
			require.NoError(t, err)
			assert.Equal(t, Joined, tk.Outcome)
			assert.Equal(t, "bob-game", tk.GameID)
			assert.Equal(t, domain.Black, tk.Color)

			// with no one else waiting the older own game is reused
			tk, err = NewQueue(store).FindOrCreateGame(ctx, request("alice"))
			require.NoError(t, err)
			assert.Equal(t, Reused, tk.Outcome)
			assert.Equal(t, "alice-game", tk.GameID)
		})
	}
}

func TestFindOrCreate_FallsBackToPlainCreate(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	// a waiting game this caller may not join keeps every exclusive create out
	_, err := store.CreateWaiting(ctx, &domain.Session{
		ID:                 "rival",
		WhiteID:            "bob",
		Status:             domain.StatusWaiting,
		FEN:                "startpos",
		Moves:              []string{},
		WhiteTimeRemaining: blitz.InitialSeconds,
		BlackTimeRemaining: blitz.InitialSeconds,
		TimeControl:        blitz,
		Tier:               domain.TierBeginner,
	}, false)
	require.NoError(t, err)

	q := NewQueue(lockedOut{Store: store}, WithMaxAttempts(3))
	tk, err := q.FindOrCreateGame(ctx, request("alice"))
	require.NoError(t, err)
	assert.Equal(t, Created, tk.Outcome)
	assert.NotEqual(t, "rival", tk.GameID)
}

// lockedOut hides waiting games from scans, so each round ends in an
// exclusive create that sees the hidden game.
type lockedOut struct{ docstore.Store }

func (lockedOut) FindWaiting(context.Context, docstore.Query) ([]*domain.Session, error) {
	return nil, nil
}

func TestFindOrCreate_BucketsAreIsolated(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(docstore.NewMemory())
	_, err := q.FindOrCreateGame(ctx, request("alice"))
	require.NoError(t, err)

	rated := request("bob")
	rated.Rated = true
	tk, err := q.FindOrCreateGame(ctx, rated)
	require.NoError(t, err)
	assert.Equal(t, Created, tk.Outcome)

	other := request("carol")
	other.Tier = domain.TierExperienced
	tk, err = q.FindOrCreateGame(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, Created, tk.Outcome)

	slower := request("dave")
	slower.TimeControl = domain.TimeControl{InitialSeconds: 600}
	tk, err = q.FindOrCreateGame(ctx, slower)
	require.NoError(t, err)
	assert.Equal(t, Created, tk.Outcome)
}

func TestFindOrCreate_SeatPreference(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(docstore.NewMemory(), WithSeatPreference(SeatBlack))
	tk, err := q.FindOrCreateGame(ctx, request("alice"))
	require.NoError(t, err)
	assert.Equal(t, domain.Black, tk.Color)
	assert.Equal(t, "alice", tk.Session.BlackID)

	joined, err := q.FindOrCreateGame(ctx, request("bob"))
	require.NoError(t, err)
	assert.Equal(t, domain.White, joined.Color)
	assert.Equal(t, "bob", joined.Session.WhiteID)

	r := NewQueue(docstore.NewMemory(), WithSeatPreference(SeatRandom))
	tk, err = r.FindOrCreateGame(ctx, request("carol"))
	require.NoError(t, err)
	assert.Contains(t, []domain.Color{domain.White, domain.Black}, tk.Color)
}

func TestFindOrCreate_Validation(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(docstore.NewMemory())
	bad := []Request{
		{PlayerID: "", Tier: domain.TierBeginner, TimeControl: blitz},
		{PlayerID: "alice", Tier: "grandmaster", TimeControl: blitz},
		{PlayerID: "alice", Tier: domain.TierBeginner, TimeControl: domain.TimeControl{InitialSeconds: 0}},
		{PlayerID: "alice", Tier: domain.TierBeginner, TimeControl: domain.TimeControl{InitialSeconds: 60, IncrementSeconds: -1}},
	}
	for _, req := range bad {
		_, err := q.FindOrCreateGame(ctx, req)
		assert.Error(t, err, "%+v", req)
	}
}

func TestParseSeatPreference(t *testing.T) {
	p, err := ParseSeatPreference("Random")
	require.NoError(t, err)
	assert.Equal(t, SeatRandom, p)
	p, err = ParseSeatPreference("")
	require.NoError(t, err)
	assert.Equal(t, SeatWhite, p)
	_, err = ParseSeatPreference("purple")
	assert.Error(t, err)
}
