// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). Framework-level settings such
// as ports, TLS, log level and CORS live in WAFFLE's CoreConfig instead.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: stratalog-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Maximum session cookie lifetime (default: 24h)

	// Sessions with no websocket or request activity for this long are closed
	// and their log scope dropped. 0 disables the job.
	InactiveSessionTimeout time.Duration

	// Login rate limiting
	RateLimitEnabled       bool          // Lock login ids after repeated failures (default: true)
	RateLimitLoginAttempts int           // Failures allowed before lockout (default: 5)
	RateLimitLoginWindow   time.Duration // Window for counting failures (default: 15m)
	RateLimitLoginLockout  time.Duration // Lockout duration (default: 15m)

	CSRFKey string // Key for CSRF token signing (32+ chars recommended)
	APIKey  string // Bearer token for the /api/logs ingestion API (empty disables it)

	// Live log routing
	HistoryLimit           int           // Records kept per scope (0 = unbounded)
	SendBuffer             int           // Outbound messages queued per websocket
	ScopeIdleTTL           time.Duration // Drop connectionless scopes idle this long (0 = never)
	ScopeSweepInterval     time.Duration // How often the idle sweep runs
	SanitizeClientMessages bool          // Strip HTML from client-submitted messages
	ForwardServerLogs      bool          // Tee the server's own zap output into live scopes
	ForwardLevel           string        // Minimum zap level forwarded (debug, info, warn, error)
	WSAllowedOrigins       []string      // Browser origins allowed to open /ws/logs (empty = same origin)
	APIBodyLimit           int64         // Max bytes accepted by POST /api/logs

	// Admin seeding
	SeedAdminLoginID  string // Login ID of the admin created on first startup
	SeedAdminName     string // Display name of that admin
	SeedAdminPassword string // Password for that admin (blank means trust login)
}
