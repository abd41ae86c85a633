package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/repository"
)

// Accounts lets the auth login find the users.
func Accounts(repo Repository) auth.Accounts { //nolint:ireturn // the login only needs the interface
	return &accounts{repo: repo}
}

type accounts struct {
	repo Repository
}

func (a *accounts) AccountByUsername(ctx context.Context, username string) (auth.Account, error) {
	u, err := a.repo.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, username)
	}

	if err != nil {
		return auth.Account{}, err //nolint:wrapcheck // the repository errors are part of the api
	}

	return toAccount(u), nil
}

func (a *accounts) AccountByID(ctx context.Context, id string) (auth.Account, error) {
	u, err := a.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return auth.Account{}, fmt.Errorf("%w: %s", auth.ErrAccountNotFound, id)
	}

	if err != nil {
		return auth.Account{}, err //nolint:wrapcheck // the repository errors are part of the api
	}

	return toAccount(u), nil
}

func toAccount(u User) auth.Account {
	return auth.Account{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsStaff:      u.IsStaff,
		IsSuperuser:  u.IsSuperuser,
	}
}

func (a *accounts) LoggedIn(ctx context.Context, id string, at time.Time) error {
	u, err := a.repo.FindByID(ctx, id)
	if err != nil {
		return err //nolint:wrapcheck // the repository errors are part of the api
	}

	at = at.Truncate(time.Microsecond)
	u.LastLogin = &at

	return a.repo.Save(ctx, u) //nolint:wrapcheck // the repository errors are part of the api
}
