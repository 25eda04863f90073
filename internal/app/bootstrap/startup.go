// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratalog/internal/app/store/sessions"
	"github.com/dalemusser/stratalog/internal/app/system/tasks"
	"github.com/dalemusser/stratalog/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It applies timeout overrides from the environment and starts the
// background jobs that keep sessions and log scopes tidy.
//
// Returning a non-nil error will abort startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		cfg := timeouts.Current()
		logger.Info("database timeouts overridden from environment",
			zap.Int("overrides", n),
			zap.Duration("ping", cfg.Ping),
			zap.Duration("short", cfg.Short),
			zap.Duration("long", cfg.Long))
	}

	startTaskRunner(appCfg, deps, logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(appCfg AppConfig, deps DBDeps, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	sessStore := sessions.New(deps.MongoDatabase)
	taskRunner.Register(tasks.SessionCleanupJob(sessStore, logger))
	if appCfg.InactiveSessionTimeout > 0 {
		taskRunner.Register(tasks.InactiveSessionCleanupJob(sessStore, deps.LogRouter, appCfg.InactiveSessionTimeout, logger))
	}
	taskRunner.Register(tasks.ScopeSweepJob(deps.LogRouter, appCfg.ScopeIdleTTL, appCfg.ScopeSweepInterval, logger))

	logger.Info("starting background jobs", zap.Strings("jobs", taskRunner.Jobs()))
	taskRunner.Start()
}
