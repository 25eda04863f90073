// internal/app/store/users/fetcher.go
package userstore

import (
	"context"

	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/app/system/normalize"
	"github.com/dalemusser/stratalog/internal/app/system/timeouts"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Fetcher implements auth.UserFetcher to load fresh user data on each request.
type Fetcher struct {
	users  *mongo.Collection
	logger *zap.Logger
}

// NewFetcher creates a UserFetcher that queries the given database.
func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		users:  db.Collection("users"),
		logger: logger,
	}
}

// FetchUser retrieves a user by ID and returns nil if the user is not found,
// disabled, or if any error occurs.
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var u models.User
	proj := options.FindOne().SetProjection(bson.M{
		"_id":       1,
		"full_name": 1,
		"login_id":  1,
		"role":      1,
		"status":    1,
	})
	if err := f.users.FindOne(ctx, bson.M{"_id": oid}, proj).Decode(&u); err != nil {
		if err != mongo.ErrNoDocuments {
			f.logger.Warn("fetch session user failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}

	if u.Status == models.StatusDisabled {
		return nil
	}

	return &auth.SessionUser{
		ID:      u.ID.Hex(),
		Name:    u.FullName,
		LoginID: u.LoginID,
		Role:    normalize.Role(u.Role),
	}
}
