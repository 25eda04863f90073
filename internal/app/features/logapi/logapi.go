// Package logapi lets backend services submit log records and manage log
// scopes over HTTP.
package logapi

import (
	"errors"
	"net/http"

	"github.com/dalemusser/stratalog/internal/app/system/jsonutil"
	"github.com/dalemusser/stratalog/internal/app/system/livelog"
	"github.com/dalemusser/stratalog/internal/app/system/logwire"
	"github.com/dalemusser/stratalog/internal/app/system/normalize"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the log API.
type Handler struct {
	router    *livelog.Router
	decoder   *logwire.Decoder
	bodyLimit int64
	logger    *zap.Logger
}

// NewHandler creates a new log API Handler. bodyLimit <= 0 uses
// jsonutil.DefaultBodyLimit.
func NewHandler(router *livelog.Router, decoder *logwire.Decoder, bodyLimit int64, logger *zap.Logger) *Handler {
	if decoder == nil {
		decoder = &logwire.Decoder{}
	}
	return &Handler{
		router:    router,
		decoder:   decoder,
		bodyLimit: bodyLimit,
		logger:    logger,
	}
}

// SubmitResult reports how many submitted records were accepted and how
// many of those were new.
type SubmitResult struct {
	Accepted int `json:"accepted"`
	Stored   int `json:"stored"`
}

// ClearResult reports a cleared scope.
type ClearResult struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Cleared bool   `json:"cleared"`
}

// Routes returns a chi.Router with the log API mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.submit)
	r.Post("/broadcast", h.broadcast)
	r.Get("/scopes", h.stats)
	r.Delete("/scopes/users/{user}", h.clearUser)
	r.Delete("/scopes/sessions/{session}", h.clearSession)
	return r
}

// submit routes one record or an array of records by their embedded
// identity. The whole batch is rejected if any element is invalid.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	data, err := jsonutil.ReadBody(r, h.bodyLimit)
	if err != nil {
		h.bodyError(w, err)
		return
	}

	records, err := h.decoder.DecodeBatch(data, models.Identity{})
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	res := SubmitResult{Accepted: len(records)}
	for _, rec := range records {
		if h.router.Log(rec, nil) {
			res.Stored++
		}
	}
	h.logger.Debug("log records submitted",
		zap.Int("accepted", res.Accepted),
		zap.Int("stored", res.Stored))
	jsonutil.OK(w, res)
}

// broadcast sends one record to every scope. Any identity in the body is
// dropped.
func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	data, err := jsonutil.ReadBody(r, h.bodyLimit)
	if err != nil {
		h.bodyError(w, err)
		return
	}

	rec, err := h.decoder.Decode(data, models.Identity{})
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	rec.Identity = models.Identity{}

	h.router.LogAll(rec)
	h.logger.Info("log record broadcast", zap.String("level", rec.Level.Name))
	jsonutil.OK(w, SubmitResult{Accepted: 1, Stored: 1})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, h.router.Stats())
}

func (h *Handler) clearUser(w http.ResponseWriter, r *http.Request) {
	h.clear(w, livelog.KindUser, normalize.IdentityKey(chi.URLParam(r, "user")), h.router.ClearUser)
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	h.clear(w, livelog.KindSession, normalize.IdentityKey(chi.URLParam(r, "session")), h.router.ClearSession)
}

func (h *Handler) clear(w http.ResponseWriter, kind livelog.Kind, key string, clear func(string) bool) {
	if key == "" {
		jsonutil.BadRequest(w, "scope key is required")
		return
	}
	if !clear(key) {
		jsonutil.NotFound(w, "no "+string(kind)+" scope for "+key)
		return
	}
	h.logger.Info("log scope cleared",
		zap.String("kind", string(kind)),
		zap.String("key", key))
	jsonutil.OK(w, ClearResult{Kind: string(kind), Key: key, Cleared: true})
}

func (h *Handler) bodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, jsonutil.ErrBodyTooLarge) {
		jsonutil.Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	jsonutil.BadRequest(w, err.Error())
}
