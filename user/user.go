// Package user is the user app: the User model, its persistence,
// the admin registration and the REST endpoints.
package user

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/go-arrower/api/auth"
)

var (
	ErrInvalidUser     = errors.New("invalid user")
	ErrInvalidUsername = fmt.Errorf("%w: username may only contain letters, digits and @/./+/-/_", ErrInvalidUser)
)

// User is the account of a person using the api or the admin.
// The password is only kept as hash, set it with SetPassword.
type User struct {
	ID           string     `db:"id"            form:"-"          json:"id"`
	Username     string     `db:"username"      form:"username"   json:"username"    validate:"required,max=150"`
	Email        string     `db:"email"         form:"email"      json:"email"       validate:"omitempty,email,max=254"`
	PasswordHash string     `db:"password_hash" form:"-"          json:"-"`
	FirstName    string     `db:"first_name"    form:"first_name" json:"firstName"   validate:"max=150"`
	LastName     string     `db:"last_name"     form:"last_name"  json:"lastName"    validate:"max=150"`
	IsStaff      bool       `db:"is_staff"      form:"is_staff"   json:"isStaff"`
	IsActive     bool       `db:"is_active"     form:"is_active"  json:"isActive"`
	IsSuperuser  bool       `db:"is_superuser"  form:"-"          json:"isSuperuser"`
	DateJoined   time.Time  `db:"date_joined"   form:"-"          json:"dateJoined"`
	LastLogin    *time.Time `db:"last_login"    form:"-"          json:"lastLogin"`
}

// NewUser returns an active user without a usable password.
func NewUser(username string, email string) User {
	return User{
		ID:           NewID(),
		Username:     strings.TrimSpace(username),
		Email:        normaliseEmail(email),
		PasswordHash: "",
		FirstName:    "",
		LastName:     "",
		IsStaff:      false,
		IsActive:     true,
		IsSuperuser:  false,
		DateJoined:   time.Now().UTC().Truncate(time.Microsecond),
		LastLogin:    nil,
	}
}

// NewID returns a time ordered uuid (v7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SetPassword hashes raw and keeps the hash.
func (u *User) SetPassword(hasher auth.PasswordHasher, raw string) error {
	hash, err := hasher.Hash(raw)
	if err != nil {
		return fmt.Errorf("could not set password: %w", err)
	}

	u.PasswordHash = hash

	return nil
}

// CheckPassword reports, if raw matches the password of the user.
// The hash carries its own cost, so no hasher is required.
func (u User) CheckPassword(raw string) bool {
	return auth.NewBcryptHasher(0).Verify(u.PasswordHash, raw)
}

// HasUsablePassword is false for users created without password, they can not log in.
func (u User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

//nolint:gochecknoglobals // compiled once, validator caches struct information
var (
	usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)
	validate      = validator.New()
)

// Validate checks the fields of the user.
func (u User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return err //nolint:wrapcheck // validation errors are mapped by the rest error handler
	}

	if !usernameRegex.MatchString(u.Username) {
		return ErrInvalidUsername
	}

	return nil
}

func normaliseEmail(email string) string {
	email = strings.TrimSpace(email)

	local, domain, found := strings.Cut(email, "@")
	if !found {
		return email
	}

	return local + "@" + strings.ToLower(domain)
}
