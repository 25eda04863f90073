package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.uber.org/zap"
)

// SessionSource supplies the browser session id for a request.
// auth.SessionManager implements it.
type SessionSource interface {
	SessionID(w http.ResponseWriter, r *http.Request) string
}

// SessionPeeker reads an existing browser session id without minting one.
// auth.SessionManager implements it.
type SessionPeeker interface {
	PeekSessionID(r *http.Request) string
}

// Peek adapts p into a SessionSource that never sets a cookie. Use it on
// routes called by services and probes, which have no browser session.
func Peek(p SessionPeeker) SessionSource {
	return peekSource{p}
}

type peekSource struct{ p SessionPeeker }

func (s peekSource) SessionID(_ http.ResponseWriter, r *http.Request) string {
	return s.p.PeekSessionID(r)
}

// Recorder receives the SEVERE record written when a request handler
// panics. livelog.Router implements it.
type Recorder interface {
	LogContext(ctx context.Context, level models.Level, message string) bool
}

// FromRequest resolves the caller identity for r: the signed-in user (if
// any) and the browser session id.
func FromRequest(w http.ResponseWriter, r *http.Request, sessions SessionSource) models.Identity {
	var id models.Identity
	if u, ok := auth.CurrentUser(r); ok {
		id.User = UserKey(u)
	}
	if sessions != nil {
		id.Session = sessions.SessionID(w, r)
	}
	return id
}

// UserKey is the identity string used for a signed-in user.
func UserKey(u *auth.SessionUser) string {
	if u == nil {
		return ""
	}
	if u.LoginID != "" {
		return u.LoginID
	}
	return u.ID
}

// Middleware binds the caller identity to the request context for the
// lifetime of the request. It must run after SessionManager.LoadSessionUser.
//
// A panic in the wrapped handler is recorded as a SEVERE log record under
// the active identity and then re-raised unchanged.
func Middleware(sessions SessionSource, rec Recorder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromRequest(w, r, sessions)
			ctx := WithIdentity(r.Context(), id)

			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p != http.ErrAbortHandler {
					msg := fmt.Sprint(p)
					if err, ok := p.(error); ok {
						msg = err.Error()
					}
					logger.Error("request handler panicked",
						zap.String("path", r.URL.Path),
						zap.String("user", id.User),
						zap.String("session", id.Session),
						zap.String("panic", msg))
					if rec != nil {
						rec.LogContext(ctx, models.LevelSevere, msg)
					}
				}
				panic(p)
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
