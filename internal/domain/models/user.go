// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account that can sign in and watch its own log scope.
//
// LoginID is what the user types to sign in (stored lowercase) and is also
// the user key that names the user's log scope. LoginIDCI is the folded
// form used for case/diacritic-insensitive matching.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"`

	LoginID    string `bson:"login_id" json:"login_id"`
	LoginIDCI  string `bson:"login_id_ci" json:"-"`
	AuthMethod string `bson:"auth_method" json:"auth_method"` // password, trust

	PasswordHash *string `bson:"password_hash,omitempty" json:"-"`

	Role   string `bson:"role" json:"role"`
	Status string `bson:"status,omitempty" json:"status,omitempty"` // active, disabled

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User roles. Admins may clear other users' scopes and read registry stats.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// AllRoles returns all valid user roles.
func AllRoles() []string {
	return []string{RoleAdmin, RoleViewer}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// Account status. A disabled user cannot sign in and loses any open
// session on its next request.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// IsValidStatus reports whether s is a known account status.
func IsValidStatus(s string) bool {
	return s == StatusActive || s == StatusDisabled
}
