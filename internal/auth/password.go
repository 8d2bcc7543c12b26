package auth

import (
	"fmt"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit in bytes.
	MaxPasswordLength = 72
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must have at least %d characters: %w", MinPasswordLength, store.ErrValidation)
	ErrPasswordTooLong  = fmt.Errorf("password must have at most %d bytes: %w", MaxPasswordLength, store.ErrValidation)
)

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. An empty hash never
// matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
