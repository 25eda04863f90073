// Package authutil hashes and checks account passwords.
package authutil

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
	BcryptCost        = 12
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
	ErrPasswordCommon   = errors.New("password is too common")
)

var commonPasswords = map[string]bool{
	"12345678":  true,
	"123456789": true,
	"password":  true,
	"password1": true,
	"qwerty123": true,
	"iloveyou":  true,
	"sunshine":  true,
	"football":  true,
	"baseball":  true,
	"letmein1":  true,
	"welcome1":  true,
	"superman":  true,
}

// ValidatePassword checks length limits and rejects well-known passwords,
// case-insensitively.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
// A nil or empty hash never matches.
func CheckPassword(password string, hash *string) bool {
	if hash == nil || *hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)) == nil
}
