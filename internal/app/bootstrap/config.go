// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/normalize"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATALOG"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, history_limit, etc.
//   - Environment variables: STRATALOG_MONGO_URI, STRATALOG_HISTORY_LIMIT, etc.
//   - Command-line flags: --mongo_uri, --history_limit, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratalog", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "stratalog-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie max age (e.g., 24h, 720h, 30m)"},
	{Name: "inactive_session_timeout", Default: "30m", Desc: "Close sessions idle this long and drop their log scope (0 disables)"},

	// Rate limiting configuration
	{Name: "rate_limit_enabled", Default: true, Desc: "Enable rate limiting for login attempts"},
	{Name: "rate_limit_login_attempts", Default: 5, Desc: "Max failed login attempts before lockout"},
	{Name: "rate_limit_login_window", Default: "15m", Desc: "Time window for counting failed attempts"},
	{Name: "rate_limit_login_lockout", Default: "15m", Desc: "Lockout duration after exceeding limit"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// API key for services that submit records through /api/logs
	{Name: "api_key", Default: "", Desc: "API key for /api/logs (leave empty to disable the ingestion API)"},

	// Live log routing
	{Name: "history_limit", Default: 1000, Desc: "Records kept per log scope (0 = unbounded)"},
	{Name: "send_buffer", Default: 256, Desc: "Outbound messages queued per websocket connection"},
	{Name: "scope_idle_ttl", Default: "1h", Desc: "Drop log scopes with no connections after this idle time (0 = never)"},
	{Name: "scope_sweep_interval", Default: "5m", Desc: "How often idle log scopes are swept"},
	{Name: "sanitize_client_messages", Default: true, Desc: "Strip HTML from client-submitted log messages"},
	{Name: "forward_server_logs", Default: false, Desc: "Forward the server's own log output to live viewers"},
	{Name: "forward_level", Default: "info", Desc: "Minimum server log level forwarded (debug, info, warn, error)"},
	{Name: "ws_allowed_origins", Default: "", Desc: "Comma-separated origins allowed to open /ws/logs (blank = same origin)"},
	{Name: "api_body_limit", Default: 1 << 20, Desc: "Max request body in bytes for POST /api/logs"},

	// Admin seeding configuration
	{Name: "seed_admin_login_id", Default: "", Desc: "Login ID of admin user to create on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Name of admin user to create on startup"},
	{Name: "seed_admin_password", Default: "", Desc: "Password of the seeded admin (blank = trust login)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// WAFFLE_* and STRATALOG_* environment variables and command-line flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 24*time.Hour),

		InactiveSessionTimeout: appValues.Duration("inactive_session_timeout", 30*time.Minute),

		// Rate limiting
		RateLimitEnabled:       appValues.Bool("rate_limit_enabled"),
		RateLimitLoginAttempts: appValues.Int("rate_limit_login_attempts"),
		RateLimitLoginWindow:   appValues.Duration("rate_limit_login_window", 15*time.Minute),
		RateLimitLoginLockout:  appValues.Duration("rate_limit_login_lockout", 15*time.Minute),

		CSRFKey: appValues.String("csrf_key"),
		APIKey:  appValues.String("api_key"),

		// Live log routing
		HistoryLimit:           appValues.Int("history_limit"),
		SendBuffer:             appValues.Int("send_buffer"),
		ScopeIdleTTL:           appValues.Duration("scope_idle_ttl", time.Hour),
		ScopeSweepInterval:     appValues.Duration("scope_sweep_interval", 5*time.Minute),
		SanitizeClientMessages: appValues.Bool("sanitize_client_messages"),
		ForwardServerLogs:      appValues.Bool("forward_server_logs"),
		ForwardLevel:           appValues.String("forward_level"),
		WSAllowedOrigins:       normalize.List(appValues.String("ws_allowed_origins")),
		APIBodyLimit:           int64(appValues.Int("api_body_limit")),

		// Admin seeding
		SeedAdminLoginID:  appValues.String("seed_admin_login_id"),
		SeedAdminName:     appValues.String("seed_admin_name"),
		SeedAdminPassword: appValues.String("seed_admin_password"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	var errs []error
	if appCfg.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history_limit must be >= 0, got %d", appCfg.HistoryLimit))
	}
	if appCfg.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be > 0, got %d", appCfg.SendBuffer))
	}
	if appCfg.ScopeIdleTTL < 0 {
		errs = append(errs, fmt.Errorf("scope_idle_ttl must be >= 0, got %s", appCfg.ScopeIdleTTL))
	}
	if appCfg.ScopeIdleTTL > 0 && appCfg.ScopeSweepInterval <= 0 {
		errs = append(errs, errors.New("scope_sweep_interval must be > 0 when scope_idle_ttl is set"))
	}
	if appCfg.APIBodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("api_body_limit must be > 0, got %d", appCfg.APIBodyLimit))
	}
	if _, err := forwardLevel(appCfg.ForwardLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("invalid livelog configuration", zap.Error(err))
		return err
	}

	return nil
}

// forwardLevel parses the forward_level setting. Blank means info.
func forwardLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("forward_level: %w", err)
	}
	return lvl, nil
}
