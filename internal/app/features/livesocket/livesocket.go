// Package livesocket serves the browser push channel: a websocket that
// receives the caller's live log records and accepts records from the
// browser.
package livesocket

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/app/system/identity"
	"github.com/dalemusser/stratalog/internal/app/system/livelog"
	"github.com/dalemusser/stratalog/internal/app/system/logwire"
	"github.com/dalemusser/stratalog/internal/app/system/network"
	"github.com/dalemusser/stratalog/internal/app/system/timeouts"
	"github.com/dalemusser/stratalog/internal/app/system/wsconn"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ParseFailureMessage is logged back to the sender's scope when an inbound
// message cannot be decoded.
const ParseFailureMessage = "Failed to parse log record from client"

// SessionToucher records activity on a signed-in session.
// *sessions.Store implements it.
type SessionToucher interface {
	Touch(ctx context.Context, token string) (bool, error)
}

// Handler upgrades requests to websocket connections and attaches them to
// the router.
type Handler struct {
	router     *livelog.Router
	sessionMgr *auth.SessionManager
	sessions   SessionToucher
	decoder    *logwire.Decoder
	upgrader   *websocket.Upgrader
	connOpts   wsconn.Options
	logger     *zap.Logger
}

// NewHandler creates a new livesocket Handler. sessionMgr and sessions may
// be nil; without a session manager callers are anonymous until they send
// an identity-binding message.
func NewHandler(
	router *livelog.Router,
	sessionMgr *auth.SessionManager,
	sessions SessionToucher,
	decoder *logwire.Decoder,
	upgrader *websocket.Upgrader,
	connOpts wsconn.Options,
	logger *zap.Logger,
) *Handler {
	if decoder == nil {
		decoder = &logwire.Decoder{}
	}
	if upgrader == nil {
		upgrader = wsconn.NewUpgrader(nil)
	}
	return &Handler{
		router:     router,
		sessionMgr: sessionMgr,
		sessions:   sessions,
		decoder:    decoder,
		upgrader:   upgrader,
		connOpts:   connOpts,
		logger:     logger,
	}
}

// Routes returns a chi.Router with the websocket endpoint mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.serve)
	return r
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	id := h.identify(w, r)

	// Upgrade bypasses w, so a session cookie minted above has to travel
	// in the handshake response.
	var header http.Header
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}

	ws, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Debug("websocket upgrade failed",
			zap.String("ip", network.GetClientIP(r)),
			zap.Error(err))
		return
	}

	conn := wsconn.New(ws, h.connOpts, h.logger)
	h.logger.Debug("live log connection opened",
		zap.String("conn", conn.ID()),
		zap.String("user", id.User),
		zap.String("session", id.Session),
		zap.String("ip", network.GetClientIP(r)))

	h.router.Connect(conn, id.User, id.Session)
	h.touch(r)

	defer func() {
		h.router.Disconnect(conn, id.User, id.Session)
		_ = conn.Close()
		h.logger.Debug("live log connection closed", zap.String("conn", conn.ID()))
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if wsconn.IsUnexpectedClose(err) {
				h.logger.Info("live log connection dropped",
					zap.String("conn", conn.ID()),
					zap.Error(err))
			}
			return
		}
		id = h.handleMessage(conn, id, data)
	}
}

// identify resolves the caller from the identity middleware when it ran,
// and from the session cookie otherwise.
func (h *Handler) identify(w http.ResponseWriter, r *http.Request) models.Identity {
	if id := identity.FromContext(r.Context()); !id.IsZero() {
		return id
	}
	if h.sessionMgr == nil {
		return models.Identity{}
	}
	return identity.FromRequest(w, r, h.sessionMgr)
}

// handleMessage routes one inbound message and returns the connection's
// identity afterwards. A connection that opened with no identity may bind
// one with a message carrying user and/or session but no message text.
func (h *Handler) handleMessage(conn *wsconn.Conn, id models.Identity, data []byte) models.Identity {
	if id.IsZero() {
		if bound, ok := logwire.ParseBinding(data); ok {
			h.router.Rebind(conn, bound.User, bound.Session)
			h.logger.Debug("live log connection bound",
				zap.String("conn", conn.ID()),
				zap.String("user", bound.User),
				zap.String("session", bound.Session))
			return bound
		}
	}

	records, err := h.decoder.DecodeBatch(data, id)
	if err != nil {
		h.logger.Debug("undecodable client message",
			zap.String("conn", conn.ID()),
			zap.Error(err))
		h.router.Log(models.NewLogRecord(models.LevelWarning, ParseFailureMessage, id), nil)
		return id
	}
	for _, rec := range records {
		h.router.Log(rec, conn)
	}
	return id
}

func (h *Handler) touch(r *http.Request) {
	if h.sessions == nil {
		return
	}
	u, ok := auth.CurrentUser(r)
	if !ok || u.SessionToken() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeouts.Short())
	defer cancel()
	if _, err := h.sessions.Touch(ctx, u.SessionToken()); err != nil {
		h.logger.Warn("failed to record session activity", zap.Error(err))
	}
}
