// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown is invoked during WAFFLE's shutdown phase, after the HTTP server
// has stopped accepting requests and in-flight requests have drained.
//
// The context carries the shutdown timeout. Open websockets are closed by
// the server shutdown itself; their Disconnect calls have already run by
// the time the log router's final state is reported here.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var firstErr error

	// Stop background task runner with context timeout
	if taskRunner != nil {
		logger.Info("stopping background task runner")
		if err := taskRunner.Stop(ctx); err != nil {
			logger.Warn("background task runner did not stop cleanly", zap.Error(err))
			firstErr = err
		}
	}

	if deps.LogRouter != nil {
		st := deps.LogRouter.Stats()
		logger.Info("live log router stopped",
			zap.Int("user_scopes", st.UserScopes),
			zap.Int("session_scopes", st.SessionScopes),
			zap.Int("connections", st.Connections),
			zap.Int("global_records", st.GlobalRecords))
	}

	// Disconnect MongoDB client
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
