// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/normalize"
	"github.com/dalemusser/stratalog/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateLoginID is returned when attempting to create a user with a login_id that already exists.
	ErrDuplicateLoginID = errors.New("a user with this login ID already exists")
	// ErrLoginIDRequired is returned when a user is created without a login_id.
	ErrLoginIDRequired = errors.New("login ID is required")
	errBadRole         = errors.New("invalid role")
	errBadStatus       = errors.New(`status must be "active"|"disabled"`)
	errBadAuthMethod   = errors.New(`auth_method must be "password"|"trust"`)
)

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByLoginID looks up a user by case/diacritic-insensitive login_id.
// Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"login_id_ci": text.Fold(loginID)}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)

	u.LoginID = normalize.Email(u.LoginID)
	if u.LoginID == "" {
		return models.User{}, ErrLoginIDRequired
	}
	u.LoginIDCI = text.Fold(u.LoginID)

	if u.AuthMethod == "" {
		u.AuthMethod = models.AuthPassword
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	u.Role = normalize.Role(u.Role)
	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}
	if !models.IsValidStatus(u.Status) {
		return models.User{}, errBadStatus
	}
	if !models.IsValidAuthMethod(u.AuthMethod) {
		return models.User{}, errBadAuthMethod
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateLoginID
		}
		return models.User{}, err
	}
	return u, nil
}

// SetStatus enables or disables a user. Disabled users lose their session
// on the next request.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, st string) error {
	if !models.IsValidStatus(st) {
		return errBadStatus
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     st,
		"updated_at": time.Now(),
	}})
	return err
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": passwordHash,
		"updated_at":    time.Now(),
	}})
	return err
}

// CountActiveAdmins returns the number of users with role=admin and status=active.
func (s *Store) CountActiveAdmins(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"role":   models.RoleAdmin,
		"status": models.StatusActive,
	})
}

// ExistsByLoginID checks if a user with the given login_id exists.
func (s *Store) ExistsByLoginID(ctx context.Context, loginID string) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{"login_id_ci": text.Fold(loginID)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
