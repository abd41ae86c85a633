package user

import (
	"context"
	"fmt"

	"github.com/go-arrower/api/auth"
)

type CreateOpt func(*createOpts)

type createOpts struct {
	password    string
	firstName   string
	lastName    string
	isStaff     bool
	isSuperuser bool
}

// WithPassword sets the password, it is checked against the password rules of the auth settings.
func WithPassword(raw string) CreateOpt {
	return func(o *createOpts) {
		o.password = raw
	}
}

func WithName(first string, last string) CreateOpt {
	return func(o *createOpts) {
		o.firstName = first
		o.lastName = last
	}
}

func WithStaff() CreateOpt {
	return func(o *createOpts) {
		o.isStaff = true
	}
}

func NewManager(repo Repository, hasher auth.PasswordHasher, passwordMinLength int) *Manager {
	return &Manager{
		repo:      repo,
		hasher:    hasher,
		minLength: passwordMinLength,
	}
}

// Manager creates users the same way for the admin, the cli and the tests.
type Manager struct {
	repo      Repository
	hasher    auth.PasswordHasher
	minLength int
}

// Create validates and persists a new user.
// Without WithPassword the user has no usable password.
func (m *Manager) Create(ctx context.Context, username string, email string, opts ...CreateOpt) (User, error) {
	var o createOpts
	for _, opt := range opts {
		opt(&o)
	}

	user := NewUser(username, email)
	user.FirstName = o.firstName
	user.LastName = o.lastName
	user.IsStaff = o.isStaff || o.isSuperuser
	user.IsSuperuser = o.isSuperuser

	if err := user.Validate(); err != nil {
		return User{}, err
	}

	if o.password != "" {
		if err := auth.ValidatePassword(o.password, user.Username, m.minLength); err != nil {
			return User{}, fmt.Errorf("%w: %w", ErrInvalidUser, err)
		}

		if err := user.SetPassword(m.hasher, o.password); err != nil {
			return User{}, err
		}
	}

	if err := m.repo.Create(ctx, user); err != nil {
		return User{}, fmt.Errorf("could not create user %s: %w", user.Username, err)
	}

	return user, nil
}

// CreateSuperuser creates a staff user with all permissions. A password is required.
func (m *Manager) CreateSuperuser(ctx context.Context, username string, email string, password string) (User, error) {
	if password == "" {
		return User{}, fmt.Errorf("%w: superuser requires a password", ErrInvalidUser)
	}

	return m.Create(ctx, username, email, WithPassword(password), func(o *createOpts) {
		o.isSuperuser = true
	})
}
