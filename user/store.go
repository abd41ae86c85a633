package user

import (
	"fmt"

	"github.com/go-arrower/api/repository"
)

// OpenMemoryRepository loads the users persisted in store and keeps them up to date.
// Other than the JSON of a User, the store includes the password hashes.
func OpenMemoryRepository(store repository.Store) (*MemoryRepository, error) {
	repo, err := repository.LoadMemoryRepository[User, string](repository.WithStore(credentialStore{store: store}))
	if err != nil {
		return nil, fmt.Errorf("could not load users: %w", err)
	}

	return newMemoryRepository(repo), nil
}

// storedUser is the representation of a User in a repository.Store.
type storedUser struct {
	User

	PasswordHash string `json:"passwordHash"`
}

// credentialStore converts the users of a MemoryRepository to storedUser.
type credentialStore struct {
	store repository.Store
}

func (s credentialStore) Store(fileName string, data any) error {
	users, ok := data.(map[string]User)
	if !ok {
		return s.store.Store(fileName, data) //nolint:wrapcheck // store errors are part of the api
	}

	stored := make(map[string]storedUser, len(users))
	for id, u := range users {
		stored[id] = storedUser{User: u, PasswordHash: u.PasswordHash}
	}

	return s.store.Store(fileName, stored) //nolint:wrapcheck // store errors are part of the api
}

func (s credentialStore) Load(fileName string, data any) error {
	users, ok := data.(*map[string]User)
	if !ok {
		return s.store.Load(fileName, data) //nolint:wrapcheck // store errors are part of the api
	}

	stored := map[string]storedUser{}
	if err := s.store.Load(fileName, &stored); err != nil {
		return err //nolint:wrapcheck // store errors are part of the api
	}

	for id, su := range stored {
		u := su.User
		u.PasswordHash = su.PasswordHash
		(*users)[id] = u
	}

	return nil
}
