// Package auth authenticates users with a username and password
// and keeps them logged in with a session.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordTooShort = fmt.Errorf("%w: too short", ErrInvalidPassword)
	ErrPasswordNumeric  = fmt.Errorf("%w: entirely numeric", ErrInvalidPassword)
	ErrPasswordCommon   = fmt.Errorf("%w: too common", ErrInvalidPassword)
	ErrPasswordSimilar  = fmt.Errorf("%w: too similar to the username", ErrInvalidPassword)
	ErrHashFailed       = errors.New("could not hash password")
)

// PasswordHasher hashes passwords for storage and verifies them on login.
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(hash string, raw string) bool
}

// NewBcryptHasher uses bcrypt.DefaultCost, if cost is not in the range bcrypt accepts.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &BcryptHasher{cost: cost}
}

type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = (*BcryptHasher)(nil)

func (h *BcryptHasher) Hash(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashFailed, err) //nolint:errorlint // prevent err in api
	}

	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash string, raw string) bool {
	if hash == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

//nolint:gochecknoglobals // read only list
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "12345678": {}, "123456789": {}, "qwertyuiop": {},
	"iloveyou": {}, "sunshine": {}, "football": {}, "letmein1": {}, "admin123": {},
	"welcome1": {}, "princess": {}, "baseball": {}, "superman": {}, "trustno1": {},
}

// ValidatePassword checks raw against the password rules of the auth settings.
func ValidatePassword(raw string, username string, minLength int) error {
	if len([]rune(raw)) < minLength {
		return fmt.Errorf("%w: at least %d characters required", ErrPasswordTooShort, minLength)
	}

	if strings.IndexFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		return ErrPasswordNumeric
	}

	if _, ok := commonPasswords[strings.ToLower(raw)]; ok {
		return ErrPasswordCommon
	}

	if username != "" && strings.Contains(strings.ToLower(raw), strings.ToLower(username)) {
		return ErrPasswordSimilar
	}

	return nil
}
