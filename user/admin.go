package user

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-arrower/api/admin"
	"github.com/go-arrower/api/rest"
)

// UserAdmin shows the users in the admin.
type UserAdmin struct {
	admin.Base[User]
}

func NewUserAdmin(repo Repository, settings rest.Settings) *UserAdmin {
	return &UserAdmin{Base: admin.Base[User]{
		Store: &adminStore{repo: repo},
		Opts: admin.Options{
			App:               "user",
			Model:             "user",
			VerboseName:       "user",
			VerboseNamePlural: "users",
			ListDisplay:       []string{"username", "email", "firstName", "lastName", "isStaff"},
			SearchFields:      []string{"username", "email", "firstName", "lastName"},
			Settings:          settings,
		},
		NewFunc: func() *User {
			u := NewUser("", "")

			return &u
		},
	}}
}

// SaveModel persists the user as is.
func (a *UserAdmin) SaveModel(req *http.Request, obj *User, form url.Values, change bool) error {
	return a.Base.SaveModel(req, obj, form, change)
}

// adminStore maps the admin's Store to the Repository.
type adminStore struct {
	repo Repository
}

func (s *adminStore) List(ctx context.Context, query admin.ListQuery) ([]User, int, error) {
	filter := Filter{Search: query.Search, Page: query.Page}

	users, err := s.repo.All(ctx, filter)
	if err != nil {
		return nil, 0, err //nolint:wrapcheck // the repository errors are part of the api
	}

	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err //nolint:wrapcheck // the repository errors are part of the api
	}

	return users, count, nil
}

func (s *adminStore) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id) //nolint:wrapcheck // the repository errors are part of the api
}

// Save assigns an id and the date joined to new users.
func (s *adminStore) Save(ctx context.Context, obj *User) error {
	if obj.ID == "" {
		obj.ID = NewID()
	}

	if obj.DateJoined.IsZero() {
		obj.DateJoined = time.Now().UTC().Truncate(time.Microsecond)
	}

	return s.repo.Save(ctx, *obj) //nolint:wrapcheck // the repository errors are part of the api
}

func (s *adminStore) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id) //nolint:wrapcheck // the repository errors are part of the api
}
