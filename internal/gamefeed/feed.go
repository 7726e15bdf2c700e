// Package gamefeed streams session documents to a seated player over a
// websocket while running that player's observer loop.
package gamefeed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/adapter/arenapresenter"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/observer"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Source is the subset of the arena service the feed needs.
type Source interface {
	Game(ctx context.Context, gameID string) (*domain.Session, error)
	Observe(ctx context.Context, gameID string, onUpdate func(*domain.Session)) (*domain.Session, error)
}

type Handler struct {
	src          Source
	format       *arenapresenter.Formatter
	pingInterval time.Duration
	writeTimeout time.Duration
	origins      []string
}

type Option func(*Handler)

func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithOriginPatterns allows cross-origin browser clients matching patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = append(h.origins, patterns...) }
}

func NewHandler(src Source, format *arenapresenter.Formatter, opts ...Option) *Handler {
	if format == nil {
		format = arenapresenter.NewFormatter(nil)
	}
	h := &Handler{
		src:          src,
		format:       format,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP expects /ws/games/{id}?player_id=...; only seated players are
// accepted.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	playerID := strings.TrimSpace(r.URL.Query().Get("player_id"))

	s, err := h.src.Game(r.Context(), gameID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		http.Error(w, h.format.Text("errors.not_found"), http.StatusNotFound)
		return
	case err != nil:
		obslog.L().Error("feed_lookup_failed", zap.String("game_id", gameID), zap.Error(err))
		http.Error(w, h.format.Text("errors.internal"), http.StatusInternalServerError)
		return
	case s.ColorOf(playerID) == "":
		http.Error(w, h.format.Text("errors.not_a_player"), http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  h.origins,
	})
	if err != nil {
		obslog.L().Debug("feed_accept_failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// clients only listen; CloseRead keeps control frames flowing and
	// cancels ctx when the peer goes away
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	obslog.L().Info("feed_open", zap.String("game_id", gameID), zap.String("player_id", playerID))

	pingDone := make(chan struct{})
	go h.pingLoop(ctx, conn, pingDone)
	defer func() {
		cancel()
		<-pingDone
	}()

	final, err := h.src.Observe(ctx, gameID, func(s *domain.Session) {
		if werr := h.write(ctx, conn, arenadto.FeedFrame{Type: arenadto.FrameGame, Game: h.format.Game(s)}); werr != nil {
			obslog.L().Debug("feed_write_failed", zap.String("game_id", gameID), zap.Error(werr))
		}
	})

	switch {
	case err == nil:
		_ = h.write(ctx, conn, arenadto.FeedFrame{Type: arenadto.FrameClosed, Message: h.format.Summary(final)})
		_ = conn.Close(websocket.StatusNormalClosure, "finished")
	case errors.Is(err, observer.ErrJoinTimeout):
		_ = h.write(ctx, conn, arenadto.FeedFrame{Type: arenadto.FrameError, Message: h.format.Text("game.join_timeout")})
		_ = conn.Close(websocket.StatusNormalClosure, "join timeout")
	case ctx.Err() != nil:
		// peer left or server shutdown
	default:
		obslog.L().Warn("feed_observe_failed", zap.String("game_id", gameID), zap.Error(err))
		_ = h.write(ctx, conn, arenadto.FeedFrame{Type: arenadto.FrameError, Message: h.format.Text("errors.internal")})
		_ = conn.Close(websocket.StatusInternalError, "observe failed")
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, frame arenadto.FeedFrame) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(h.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
