package gamefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/movesync"
	"github.com/park285/cheese-arena/internal/observer"
	"github.com/park285/cheese-arena/internal/players"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var blitz = domain.TimeControl{InitialSeconds: 180, IncrementSeconds: 2}

func setup(t *testing.T, opts ...observer.Option) (*arena.Service, string) {
	t.Helper()
	store := docstore.NewMemory()
	repo := players.NewMemoryRepository()
	engine := rules.NewEngine()
	svc := arena.New(arena.Deps{
		Store:    store,
		Engine:   engine,
		Players:  repo,
		Settler:  settlement.NewService(store, engine, repo),
		Observer: append([]observer.Option{observer.WithInterval(20 * time.Millisecond)}, opts...),
	})
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/ws/games/{id}", NewHandler(svc, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) arenadto.FeedFrame {
	t.Helper()
	var f arenadto.FeedFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func TestFeed_StreamsUntilFinished(t *testing.T) {
	svc, base := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := svc.FindOrCreateGame(ctx, "alice", blitz, false)
	require.NoError(t, err)
	_, err = svc.FindOrCreateGame(ctx, "bob", blitz, false)
	require.NoError(t, err)

	conn, _, err := websocket.Dial(ctx, base+"/ws/games/"+a.GameID+"?player_id=alice", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	first := readFrame(t, ctx, conn)
	require.Equal(t, arenadto.FrameGame, first.Type)
	assert.Equal(t, "active", first.Game.Status)

	for i, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		player := "alice"
		if i%2 == 1 {
			player = "bob"
		}
		_, err := svc.SubmitMove(ctx, a.GameID, movesync.Move{PlayerID: player, From: mv[:2], To: mv[2:]})
		require.NoError(t, err)
	}

	var last arenadto.FeedFrame
	for {
		f := readFrame(t, ctx, conn)
		if f.Type == arenadto.FrameClosed {
			assert.Equal(t, "Checkmate. bob wins.", f.Message)
			break
		}
		require.Equal(t, arenadto.FrameGame, f.Type)
		assert.GreaterOrEqual(t, f.Game.Revision, first.Game.Revision)
		last = f
	}
	require.NotNil(t, last.Game)
	assert.True(t, last.Game.Finished())
	assert.Equal(t, "black_win", last.Game.Result)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestFeed_RejectsOutsiders(t *testing.T) {
	svc, base := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := svc.FindOrCreateGame(ctx, "alice", blitz, false)
	require.NoError(t, err)

	_, resp, err := websocket.Dial(ctx, base+"/ws/games/"+a.GameID+"?player_id=mallory", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, base+"/ws/games/nope?player_id=alice", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeed_JoinTimeout(t *testing.T) {
	svc, base := setup(t, observer.WithJoinTimeout(100*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := svc.FindOrCreateGame(ctx, "alice", blitz, true)
	require.NoError(t, err)

	conn, _, err := websocket.Dial(ctx, base+"/ws/games/"+a.GameID+"?player_id=alice", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	first := readFrame(t, ctx, conn)
	assert.Equal(t, "waiting", first.Game.Status)
	next := readFrame(t, ctx, conn)
	assert.Equal(t, arenadto.FrameError, next.Type)
	assert.Equal(t, "No opponent found in time. Please queue again.", next.Message)
}
