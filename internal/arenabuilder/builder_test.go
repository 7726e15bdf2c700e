package arenabuilder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/domain"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		Store:              "memory",
		Archive:            "none",
		Players:            "memory",
		TickInterval:       time.Second,
		JoinTimeout:        time.Minute,
		MatchmakingRetries: 5,
		SeatPreference:     "white",
		DefaultTimeControl: "300+5",
	}
}

func TestNew_MemoryWithBadgerArchive(t *testing.T) {
	cfg := baseConfig()
	cfg.Archive = "badger"
	cfg.BadgerPath = filepath.Join(t.TempDir(), "archive")

	d, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, d.Close()) }()
	assert.Equal(t, "badger", d.Archiver.Name())

	rec := httptest.NewRecorder()
	d.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/players/nobody/games", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestNew_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := baseConfig()
	cfg.Store = "redis"
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	d, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	tc := domain.TimeControl{InitialSeconds: 300, IncrementSeconds: 5}
	a, err := d.Service.FindOrCreateGame(ctx, "alice", tc, true)
	require.NoError(t, err)
	b, err := d.Service.FindOrCreateGame(ctx, "bob", tc, true)
	require.NoError(t, err)
	assert.Equal(t, a.GameID, b.GameID)
	assert.Equal(t, domain.White, a.Color)

	rec := httptest.NewRecorder()
	d.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/players/alice/games", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_RejectsBadSettings(t *testing.T) {
	cfg := baseConfig()
	cfg.SeatPreference = "purple"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.DefaultTimeControl = "blitz"
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Store = "redis"
	cfg.RedisURL = "http://not-redis"
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
