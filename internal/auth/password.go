package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLoginDisabled      = errors.New("login is disabled")
)

// HashPassword returns the bcrypt hash stored in admin_password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Admin checks credentials against the single configured administrator.
type Admin struct {
	Username     string
	PasswordHash string
}

// Authenticate returns nil when username and password match. An empty hash
// disables login entirely.
func (a Admin) Authenticate(username, password string) error {
	if a.PasswordHash == "" {
		return ErrLoginDisabled
	}
	if username != a.Username {
		// same bcrypt cost for unknown usernames
		_ = bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
