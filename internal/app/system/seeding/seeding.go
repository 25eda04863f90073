// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"

	userstore "github.com/dalemusser/stratalog/internal/app/store/users"
	"github.com/dalemusser/stratalog/internal/app/system/authutil"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Admin describes the bootstrap administrator account.
type Admin struct {
	LoginID  string
	Name     string
	Password string // empty creates a trust-login account
}

// SeedAll seeds default data if not already present.
func SeedAll(ctx context.Context, db *mongo.Database, admin Admin, logger *zap.Logger) error {
	return seedAdmin(ctx, db, admin, logger)
}

// seedAdmin creates the configured admin unless the login id is blank or
// an active admin already exists.
func seedAdmin(ctx context.Context, db *mongo.Database, admin Admin, logger *zap.Logger) error {
	if admin.LoginID == "" {
		return nil
	}
	store := userstore.New(db)

	n, err := store.CountActiveAdmins(ctx)
	if err != nil {
		logger.Error("failed to count admins", zap.Error(err))
		return err
	}
	if n > 0 {
		return nil
	}

	u := models.User{
		FullName:   admin.Name,
		LoginID:    admin.LoginID,
		AuthMethod: models.AuthTrust,
		Role:       models.RoleAdmin,
	}
	if admin.Password != "" {
		hash, err := authutil.HashPassword(admin.Password)
		if err != nil {
			return err
		}
		u.AuthMethod = models.AuthPassword
		u.PasswordHash = &hash
	}

	created, err := store.Create(ctx, u)
	if err == userstore.ErrDuplicateLoginID {
		logger.Warn("seed admin login id already taken by a non-admin account",
			zap.String("login_id", admin.LoginID))
		return nil
	}
	if err != nil {
		logger.Error("failed to seed admin", zap.String("login_id", admin.LoginID), zap.Error(err))
		return err
	}
	logger.Info("seeded admin user",
		zap.String("login_id", created.LoginID),
		zap.String("auth_method", created.AuthMethod))
	return nil
}
