// internal/app/features/login/login.go
package login

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/stratalog/internal/app/store/ratelimit"
	"github.com/dalemusser/stratalog/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratalog/internal/app/store/users"
	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/app/system/authutil"
	"github.com/dalemusser/stratalog/internal/app/system/identity"
	"github.com/dalemusser/stratalog/internal/app/system/jsonutil"
	"github.com/dalemusser/stratalog/internal/app/system/network"
	"github.com/dalemusser/stratalog/internal/app/system/normalize"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Promoter folds an anonymous session's log scope into a user's scope.
// livelog.Router implements it.
type Promoter interface {
	Promote(user, session string) bool
}

// Limiter tracks failed sign-ins per login id. ratelimit.Store implements it.
type Limiter interface {
	Check(ctx context.Context, loginID string) (ratelimit.Decision, error)
	RecordFailure(ctx context.Context, loginID string) (ratelimit.Decision, error)
	Clear(ctx context.Context, loginID string) error
}

// Handler provides login handlers.
type Handler struct {
	userStore         *userstore.Store
	sessionsStore     *sessions.Store
	sessionMgr        *auth.SessionManager
	promoter          Promoter
	limiter           Limiter
	sessionTTL        time.Duration
	trustLoginEnabled bool // Only enable in dev mode for security
	logger            *zap.Logger
}

// NewHandler creates a new login Handler.
// Set trustLoginEnabled to true only in development mode. A nil limiter
// disables lockout.
func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	sessionsStore *sessions.Store,
	promoter Promoter,
	limiter Limiter,
	sessionTTL time.Duration,
	trustLoginEnabled bool,
	logger *zap.Logger,
) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Handler{
		userStore:         userstore.New(db),
		sessionsStore:     sessionsStore,
		sessionMgr:        sessionMgr,
		promoter:          promoter,
		limiter:           limiter,
		sessionTTL:        sessionTTL,
		trustLoginEnabled: trustLoginEnabled,
		logger:            logger,
	}
}

// Request is the login body.
type Request struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password,omitempty"`
}

// Response describes the signed-in caller.
type Response struct {
	UserID  string `json:"user_id"`
	LoginID string `json:"login_id"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role"`
	Session string `json:"session,omitempty"`
}

// Routes returns a chi.Router with login routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.handleLogin)
	r.With(sessionMgr.RequireSignedIn).Get("/me", h.handleMe)
	return r
}

// handleLogin signs the caller in. The browser keeps its session id, and
// the log history gathered while anonymous moves to the user's scope.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	loginID := normalize.Email(req.LoginID)
	if loginID == "" {
		jsonutil.BadRequest(w, "login_id is required")
		return
	}

	if !h.allowed(w, r, loginID) {
		return
	}

	user, err := h.userStore.GetByLoginID(r.Context(), loginID)
	if err == mongo.ErrNoDocuments {
		h.logger.Info("login failed: unknown login id",
			zap.String("login_id", loginID),
			zap.String("ip", network.GetClientIP(r)))
		h.recordFailure(r, loginID)
		jsonutil.Unauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("database error during login lookup", zap.Error(err))
		jsonutil.InternalError(w, "service temporarily unavailable")
		return
	}

	if user.Status != models.StatusActive {
		h.logger.Info("login failed: user disabled", zap.String("login_id", loginID))
		jsonutil.Forbidden(w, "account is disabled")
		return
	}

	if !h.verify(user, req.Password) {
		h.logger.Info("login failed: bad credentials",
			zap.String("login_id", loginID),
			zap.String("auth_method", user.AuthMethod),
			zap.String("ip", network.GetClientIP(r)))
		h.recordFailure(r, loginID)
		jsonutil.Unauthorized(w, "invalid credentials")
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Clear(r.Context(), loginID); err != nil {
			h.logger.Warn("failed to clear login attempts", zap.String("login_id", loginID), zap.Error(err))
		}
	}

	session := h.sessionMgr.SessionID(w, r)
	if err := h.createTrackedSession(w, r, user, session); err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		jsonutil.InternalError(w, "failed to create session")
		return
	}

	if h.promoter != nil && h.promoter.Promote(user.LoginID, session) {
		h.logger.Debug("moved anonymous log history to user scope",
			zap.String("login_id", user.LoginID))
	}

	h.logger.Info("login succeeded", zap.String("login_id", user.LoginID))
	jsonutil.OK(w, Response{
		UserID:  user.ID.Hex(),
		LoginID: user.LoginID,
		Name:    user.FullName,
		Role:    user.Role,
		Session: session,
	})
}

// allowed refuses a locked login id with 429. Limiter errors fail open.
func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, loginID string) bool {
	if h.limiter == nil {
		return true
	}
	d, err := h.limiter.Check(r.Context(), loginID)
	if err != nil {
		h.logger.Warn("login rate limit check failed", zap.String("login_id", loginID), zap.Error(err))
		return true
	}
	if d.Allowed {
		return true
	}
	if !d.LockedUntil.IsZero() {
		secs := int(math.Ceil(time.Until(d.LockedUntil).Seconds()))
		if secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	h.logger.Info("login refused: too many failed attempts",
		zap.String("login_id", loginID),
		zap.String("ip", network.GetClientIP(r)))
	jsonutil.Error(w, http.StatusTooManyRequests, "too many failed login attempts, try again later")
	return false
}

func (h *Handler) recordFailure(r *http.Request, loginID string) {
	if h.limiter == nil {
		return
	}
	d, err := h.limiter.RecordFailure(r.Context(), loginID)
	if err != nil {
		h.logger.Warn("failed to record login failure", zap.String("login_id", loginID), zap.Error(err))
		return
	}
	if !d.Allowed {
		h.logger.Warn("login id locked after repeated failures",
			zap.String("login_id", loginID),
			zap.Time("locked_until", d.LockedUntil))
	}
}

func (h *Handler) verify(user *models.User, password string) bool {
	switch user.AuthMethod {
	case models.AuthTrust:
		return h.trustLoginEnabled
	case models.AuthPassword:
		return authutil.CheckPassword(password, user.PasswordHash)
	default:
		return false
	}
}

// createTrackedSession writes the cookie session and records it in MongoDB.
// Tracking is best effort and never fails the login.
func (h *Handler) createTrackedSession(w http.ResponseWriter, r *http.Request, user *models.User, scopeKey string) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}
	if err := h.sessionMgr.CreateSession(w, r, user.ID, user.LoginID, user.Role, token); err != nil {
		return err
	}

	now := time.Now()
	record := sessions.Session{
		Token:        token,
		UserID:       user.ID,
		LoginID:      user.LoginID,
		ScopeKey:     scopeKey,
		IPAddress:    network.GetClientIP(r),
		UserAgent:    r.UserAgent(),
		LoginAt:      now,
		LastActivity: now,
		ExpiresAt:    now.Add(h.sessionTTL),
	}
	if err := h.sessionsStore.Create(context.WithoutCancel(r.Context()), record); err != nil {
		h.logger.Warn("failed to track session", zap.Error(err))
	}
	return nil
}

// handleMe reports the signed-in caller and the identity its log records
// are routed under.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id := identity.FromContext(r.Context())
	if id.Session == "" {
		id.Session = h.sessionMgr.PeekSessionID(r)
	}
	jsonutil.OK(w, Response{
		UserID:  u.ID,
		LoginID: u.LoginID,
		Name:    u.Name,
		Role:    u.Role,
		Session: id.Session,
	})
}
