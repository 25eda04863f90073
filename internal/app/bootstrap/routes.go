// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	healthfeature "github.com/dalemusser/stratalog/internal/app/features/health"
	livesocketfeature "github.com/dalemusser/stratalog/internal/app/features/livesocket"
	logapifeature "github.com/dalemusser/stratalog/internal/app/features/logapi"
	loginfeature "github.com/dalemusser/stratalog/internal/app/features/login"
	logoutfeature "github.com/dalemusser/stratalog/internal/app/features/logout"
	"github.com/dalemusser/stratalog/internal/app/store/ratelimit"
	"github.com/dalemusser/stratalog/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratalog/internal/app/store/users"
	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratalog/internal/app/system/identity"
	"github.com/dalemusser/stratalog/internal/app/system/jsonutil"
	"github.com/dalemusser/stratalog/internal/app/system/livelog"
	"github.com/dalemusser/stratalog/internal/app/system/logwire"
	"github.com/dalemusser/stratalog/internal/app/system/wsconn"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Route groups:
//   - /ws/logs: live log websocket, session cookie identity, no timeout
//   - /api/logs: record ingestion and scope admin, API key auth, no CSRF
//   - /login, /logout, /csrf: session cookie auth + CSRF
//   - /health, /ready, /livez, /metrics: unauthenticated probes
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	router := deps.LogRouter

	// When forwarding is on, handler log output also reaches live viewers
	// under the identity bound to the request context.
	if appCfg.ForwardServerLogs {
		lvl, err := forwardLevel(appCfg.ForwardLevel)
		if err != nil {
			return nil, err
		}
		logger = livelog.Tee(logger, router, lvl)
		logger.Info("forwarding server logs to live viewers", zap.Stringer("level", lvl))
	}

	// Create the session manager using app config.
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser re-reads the user on every request so disabled
	// accounts and role changes take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase, logger))

	sessionsStore := sessions.New(deps.MongoDatabase)

	decoder := &logwire.Decoder{}
	if appCfg.SanitizeClientMessages {
		decoder.Sanitize = htmlsanitize.StripTags
	}

	connOpts := wsconn.DefaultOptions()
	connOpts.SendBuffer = appCfg.SendBuffer

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	// Identity middleware binds user + session id to the request context
	// and records handler panics as SEVERE. Browser routes mint a session
	// id; service and probe routes only read an existing one.
	browserIdentity := identity.Middleware(sessionMgr, router, logger)
	serviceIdentity := identity.Middleware(identity.Peek(sessionMgr), router, logger)

	// ─────────────────────────────────────────────────────────────────────────────
	// Live log websocket
	// ─────────────────────────────────────────────────────────────────────────────

	// Mounted before the timeout group: a websocket lives far longer than
	// any request deadline and needs the raw ResponseWriter to hijack.
	liveHandler := livesocketfeature.NewHandler(
		router,
		sessionMgr,
		sessionsStore,
		decoder,
		wsconn.NewUpgrader(appCfg.WSAllowedOrigins),
		connOpts,
		logger,
	)
	r.Group(func(r chi.Router) {
		r.Use(browserIdentity)
		r.Mount("/ws/logs", livesocketfeature.Routes(liveHandler))
	})

	r.Group(func(r chi.Router) {
		// Request timeout middleware: prevents requests from hanging indefinitely.
		r.Use(chimw.Timeout(30 * time.Second))

		// ─────────────────────────────────────────────────────────────────────
		// Ingestion API (Bearer API key, no CSRF)
		// ─────────────────────────────────────────────────────────────────────
		logapiHandler := logapifeature.NewHandler(router, decoder, appCfg.APIBodyLimit, logger)
		r.Group(func(r chi.Router) {
			r.Use(serviceIdentity)
			r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
			r.Mount("/api/logs", logapifeature.Routes(logapiHandler))
		})

		// ─────────────────────────────────────────────────────────────────────
		// Health, readiness and metrics
		// ─────────────────────────────────────────────────────────────────────
		healthHandler := healthfeature.NewHandler(deps.MongoClient, router, logger)
		r.Group(func(r chi.Router) {
			r.Use(serviceIdentity)
			r.Mount("/health", healthfeature.Routes(healthHandler))
			healthfeature.MountRootEndpoints(r, healthHandler)
			r.Handle("/metrics", promhttp.Handler())
		})

		// ─────────────────────────────────────────────────────────────────────
		// Cookie-authenticated routes (CSRF protected)
		// ─────────────────────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(browserIdentity)
			r.Use(csrfProtect(appCfg, secure, logger))

			// Clients fetch a token here and send it back as X-CSRF-Token.
			r.Get("/csrf", func(w http.ResponseWriter, req *http.Request) {
				jsonutil.OK(w, map[string]string{"csrf_token": csrf.Token(req)})
			})

			var limiter loginfeature.Limiter
			if appCfg.RateLimitEnabled {
				limiter = ratelimit.New(deps.MongoDatabase, ratelimit.Policy{
					MaxAttempts: appCfg.RateLimitLoginAttempts,
					Window:      appCfg.RateLimitLoginWindow,
					Lockout:     appCfg.RateLimitLoginLockout,
				})
			}
			loginHandler := loginfeature.NewHandler(
				deps.MongoDatabase,
				sessionMgr,
				sessionsStore,
				router,
				limiter,
				appCfg.SessionMaxAge,
				coreCfg.Env == "dev",
				logger,
			)
			r.Mount("/login", loginfeature.Routes(loginHandler, sessionMgr))

			logoutHandler := logoutfeature.NewHandler(sessionMgr, router, sessionsStore, logger)
			r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))
		})
	})

	return r, nil
}

// csrfProtect builds the CSRF middleware for cookie-authenticated routes.
// The cookie name "stratalog_csrf" avoids collisions with other services
// on the same domain.
func csrfProtect(appCfg AppConfig, secure bool, logger *zap.Logger) func(http.Handler) http.Handler {
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratalog_csrf"),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			jsonutil.Forbidden(w, "CSRF token invalid or missing")
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	return csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)
}
