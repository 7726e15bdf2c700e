package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/arenapresenter"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/movesync"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type Handlers struct {
	svc       *arena.Service
	format    *arenapresenter.Formatter
	validate  *validator.Validate
	defaultTC domain.TimeControl
	history   archive.Reader
}

type Option func(*Handlers)

// WithHistory enables the archive browsing routes.
func WithHistory(r archive.Reader) Option { return func(h *Handlers) { h.history = r } }

func WithDefaultTimeControl(tc domain.TimeControl) Option {
	return func(h *Handlers) { h.defaultTC = tc }
}

func NewHandlers(svc *arena.Service, format *arenapresenter.Formatter, opts ...Option) *Handlers {
	if format == nil {
		format = arenapresenter.NewFormatter(nil)
	}
	h := &Handlers{
		svc:       svc,
		format:    format,
		validate:  validator.New(),
		defaultTC: domain.TimeControl{InitialSeconds: 300, IncrementSeconds: 5},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) FindOrCreateGame(w http.ResponseWriter, r *http.Request) {
	var req arenadto.FindGameRequest
	if !h.bind(w, r, &req) {
		return
	}
	tc := h.defaultTC
	if strings.TrimSpace(req.TimeControl) != "" {
		parsed, err := domain.ParseTimeControl(req.TimeControl)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), false)
			return
		}
		tc = parsed
	}

	ticket, err := h.svc.FindOrCreateGame(r.Context(), req.PlayerID, tc, req.Rated)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, arenadto.FindGameResponse{
		GameID:  ticket.GameID,
		Outcome: string(ticket.Outcome),
		Color:   string(ticket.Color),
		Message: h.format.Summary(ticket.Session),
		Game:    h.format.Game(ticket.Session),
	})
}

func (h *Handlers) Game(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Game(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.format.Game(s))
}

func (h *Handlers) SubmitMove(w http.ResponseWriter, r *http.Request) {
	var req arenadto.MoveRequest
	if !h.bind(w, r, &req) {
		return
	}
	mv := movesync.Move{
		PlayerID:  strings.TrimSpace(req.PlayerID),
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	}
	s, err := h.svc.SubmitMove(r.Context(), chi.URLParam(r, "id"), mv)
	if rej, ok := movesync.AsRejection(err); ok {
		status := http.StatusConflict
		if rej.Reason == movesync.IllegalMove {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, arenadto.MoveResponse{
			Rejected: string(rej.Reason),
			Message:  h.format.Rejected(rej, mv.Coordinate()),
			Game:     h.format.Game(s),
		})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := h.format.Accepted(mv.PlayerID, mv.Coordinate())
	if s.Status == domain.StatusFinished {
		msg = h.format.Summary(s)
	}
	writeJSON(w, http.StatusOK, arenadto.MoveResponse{Accepted: true, Message: msg, Game: h.format.Game(s)})
}

func (h *Handlers) Resign(w http.ResponseWriter, r *http.Request) {
	var req arenadto.ResignRequest
	if !h.bind(w, r, &req) {
		return
	}
	s, err := h.svc.Resign(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.PlayerID))
	switch {
	case errors.Is(err, arena.ErrAlreadyDecided):
		writeJSON(w, http.StatusConflict, arenadto.MoveResponse{
			Rejected: codeDecided,
			Message:  h.format.Text("resign.refused"),
			Game:     h.format.Game(s),
		})
	case err != nil:
		h.fail(w, r, err)
	default:
		writeJSON(w, http.StatusOK, arenadto.MoveResponse{Accepted: true, Message: h.format.Summary(s), Game: h.format.Game(s)})
	}
}

func (h *Handlers) Tick(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Tick(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.format.Game(s))
}

func (h *Handlers) Verdict(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Evaluate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, arenadto.VerdictResponse{
		Terminal: v.Terminal,
		Result:   string(v.Result),
		Reason:   string(v.Reason),
	})
}

func (h *Handlers) LegalMoves(w http.ResponseWriter, r *http.Request) {
	square := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("square")))
	moves, err := h.svc.LegalMoves(r.Context(), chi.URLParam(r, "id"), square)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, arenadto.LegalMovesResponse{Square: square, Moves: moves})
}

func (h *Handlers) PGN(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, codeUnavailable, "archive browsing is not enabled", false)
		return
	}
	rec, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	_, _ = w.Write([]byte(rec.PGN()))
}

func (h *Handlers) Player(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Player(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, arenapresenter.ToDTOPlayer(p))
}

func (h *Handlers) PlayerGames(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, codeUnavailable, "archive browsing is not enabled", false)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer", false)
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := h.history.List(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handlers) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decode(w, r, v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body", false)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), false)
		return false
	}
	return true
}

// fail maps service errors to status codes and catalog texts.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, archive.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, h.format.Text("errors.not_found"), false)
	case errors.Is(err, arena.ErrNotAPlayer):
		writeError(w, http.StatusForbidden, codeNotAPlayer, h.format.Text("errors.not_a_player"), false)
	case errors.Is(err, arena.ErrBusy), errors.Is(err, docstore.ErrConflict):
		writeError(w, http.StatusConflict, codeStale, h.format.Text("errors.stale"), true)
	case errors.Is(err, rules.ErrInvalidSquare):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), false)
	default:
		obslog.L().Error("http_request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, h.format.Text("errors.internal"), false)
	}
}
