package user

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-arrower/api/repository"
	"github.com/go-arrower/api/rest"
)

// Repository persists users.
// Not found users return an error wrapping repository.ErrNotFound,
// a duplicate username an error wrapping repository.ErrAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user User) error
	// Save updates the user or creates it, if it does not exist.
	Save(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	All(ctx context.Context, filter Filter) ([]User, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Delete(ctx context.Context, id string) error
}

// Filter selects the users of All and Count.
// Search matches username, email and name case insensitive.
// A zero Page returns all users.
type Filter struct {
	Search string
	Page   rest.Page
}

func NewMemoryRepository(opts ...repository.Option) *MemoryRepository {
	return newMemoryRepository(repository.NewMemoryRepository[User, string](opts...))
}

func newMemoryRepository(repo *repository.MemoryRepository[User, string]) *MemoryRepository {
	return &MemoryRepository{
		mu:   sync.Mutex{},
		repo: repo,
	}
}

// MemoryRepository is used without a database and in tests.
type MemoryRepository struct {
	// mu makes the check of the unique username and the write atomic.
	mu   sync.Mutex
	repo *repository.MemoryRepository[User, string]
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(ctx context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureUniqueUsername(ctx, user); err != nil {
		return err
	}

	return r.repo.Create(ctx, user) //nolint:wrapcheck // the repository errors are part of the api
}

func (r *MemoryRepository) Save(ctx context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureUniqueUsername(ctx, user); err != nil {
		return err
	}

	return r.repo.Save(ctx, user) //nolint:wrapcheck // the repository errors are part of the api
}

func (r *MemoryRepository) ensureUniqueUsername(ctx context.Context, user User) error {
	same, err := r.repo.FindBy(ctx, func(u User) bool {
		return u.Username == user.Username && u.ID != user.ID
	})
	if err != nil {
		return fmt.Errorf("could not check username: %w", err)
	}

	if len(same) > 0 {
		return fmt.Errorf("%w: username %s", repository.ErrAlreadyExists, user.Username)
	}

	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (User, error) {
	u, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("could not find user %s: %w", id, err)
	}

	return u, nil
}

func (r *MemoryRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	users, err := r.repo.FindBy(ctx, func(u User) bool { return u.Username == username })
	if err != nil {
		return User{}, fmt.Errorf("could not find user %s: %w", username, err)
	}

	if len(users) == 0 {
		return User{}, fmt.Errorf("%w: user %s", repository.ErrNotFound, username)
	}

	return users[0], nil
}

func (r *MemoryRepository) All(ctx context.Context, filter Filter) ([]User, error) {
	users, err := r.filter(ctx, filter)
	if err != nil {
		return nil, err
	}

	if filter.Page.Size == 0 {
		return users, nil
	}

	start := min(max(filter.Page.Offset(), 0), len(users))
	end := min(start+filter.Page.Limit(), len(users))

	return users[start:end], nil
}

func (r *MemoryRepository) Count(ctx context.Context, filter Filter) (int, error) {
	users, err := r.filter(ctx, filter)
	if err != nil {
		return 0, err
	}

	return len(users), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ok, _ := r.repo.Exists(ctx, id); !ok {
		return fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
	}

	return r.repo.DeleteByID(ctx, id) //nolint:wrapcheck // the repository errors are part of the api
}

func (r *MemoryRepository) filter(ctx context.Context, filter Filter) ([]User, error) {
	search := strings.ToLower(filter.Search)

	users, err := r.repo.FindBy(ctx, func(u User) bool {
		if search == "" {
			return true
		}

		return strings.Contains(strings.ToLower(u.Username), search) ||
			strings.Contains(strings.ToLower(u.Email), search) ||
			strings.Contains(strings.ToLower(u.FullName()), search)
	})
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}

	slices.SortFunc(users, func(a, b User) int {
		return cmp.Or(a.DateJoined.Compare(b.DateJoined), strings.Compare(a.Username, b.Username))
	})

	return users, nil
}
