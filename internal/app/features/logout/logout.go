// internal/app/features/logout/logout.go
package logout

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratalog/internal/app/store/sessions"
	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/app/system/identity"
	"github.com/dalemusser/stratalog/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ScopeClearer drops log scopes. livelog.Router implements it.
type ScopeClearer interface {
	ClearUser(user string) bool
	ClearSession(session string) bool
}

// SessionCloser ends a tracked session. *sessions.Store implements it.
type SessionCloser interface {
	Close(ctx context.Context, token string, reason string) error
}

// Handler provides logout handlers.
type Handler struct {
	sessionMgr    *auth.SessionManager
	scopes        ScopeClearer
	sessionsStore SessionCloser
	logger        *zap.Logger
}

// NewHandler creates a new logout Handler.
func NewHandler(
	sessionMgr *auth.SessionManager,
	scopes ScopeClearer,
	sessionsStore SessionCloser,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessionMgr:    sessionMgr,
		scopes:        scopes,
		sessionsStore: sessionsStore,
		logger:        logger,
	}
}

// Result reports which log scopes the logout dropped.
type Result struct {
	UserScopeCleared    bool `json:"user_scope_cleared"`
	SessionScopeCleared bool `json:"session_scope_cleared"`
}

// Routes returns a chi.Router with logout routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAuth)
	r.Post("/", h.handleLogout)
	return r
}

// handleLogout ends the session: the user's and the browser session's log
// scopes are dropped with their history, the tracked session is closed and
// the cookie is destroyed.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var res Result

	if user, ok := auth.CurrentUser(r); ok {
		if key := identity.UserKey(user); key != "" && h.scopes != nil {
			res.UserScopeCleared = h.scopes.ClearUser(key)
		}
		if token := user.SessionToken(); token != "" && h.sessionsStore != nil {
			if err := h.sessionsStore.Close(r.Context(), token, sessions.EndReasonLogout); err != nil {
				h.logger.Warn("failed to close session in store", zap.Error(err))
			}
		}
	}

	if session := h.sessionMgr.PeekSessionID(r); session != "" && h.scopes != nil {
		res.SessionScopeCleared = h.scopes.ClearSession(session)
	}

	h.sessionMgr.DestroySession(w, r)
	jsonutil.OK(w, res)
}
