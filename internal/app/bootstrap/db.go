// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratalog/internal/app/system/indexes"
	"github.com/dalemusser/stratalog/internal/app/system/livelog"
	"github.com/dalemusser/stratalog/internal/app/system/seeding"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and creates the live log router.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema
// and Startup.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	router := livelog.NewRouter(logger, livelog.Options{HistoryLimit: appCfg.HistoryLimit})
	logger.Info("initialized live log router",
		zap.Int("history_limit", appCfg.HistoryLimit),
		zap.Duration("scope_idle_ttl", appCfg.ScopeIdleTTL),
	)

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		LogRouter:     router,
	}, nil
}

// EnsureSchema creates indexes and seeds the initial admin.
//
// The context has a timeout based on coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	admin := seeding.Admin{
		LoginID:  appCfg.SeedAdminLoginID,
		Name:     appCfg.SeedAdminName,
		Password: appCfg.SeedAdminPassword,
	}
	if err := seeding.SeedAll(ctx, db, admin, logger); err != nil {
		logger.Error("failed to seed default data", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
