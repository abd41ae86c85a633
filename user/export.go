package user

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/go-arrower/api/rest"
	"github.com/go-arrower/api/storage"
)

const (
	exportPageSize = 500
	exportDir      = "exports"
)

// ExportUsers writes all users as csv into the storage.
type ExportUsers struct {
	// RequestedBy is the id of the user who started the export.
	RequestedBy string `validate:"omitempty,uuid"`
}

func (ExportUsers) JobType() string { return "user.ExportUsers" }

//nolint:gochecknoglobals // read only header of the export
var exportHeader = []string{
	"id", "username", "email", "first_name", "last_name",
	"is_staff", "is_active", "is_superuser", "date_joined", "last_login",
}

// ExportUsersFunc returns the JobFunc working the ExportUsers job.
// The file is saved as exports/users-<timestamp>.csv, store must not be served.
func ExportUsersFunc(repo Repository, store storage.Storage) func(context.Context, ExportUsers) error {
	return func(ctx context.Context, _ ExportUsers) error {
		var buf bytes.Buffer

		w := csv.NewWriter(&buf)
		if err := w.Write(exportHeader); err != nil {
			return fmt.Errorf("could not write header: %w", err)
		}

		for page := (rest.Page{Number: 1, Size: exportPageSize}); ; page.Number++ {
			users, err := repo.All(ctx, Filter{Search: "", Page: page})
			if err != nil {
				return fmt.Errorf("could not load users: %w", err)
			}

			for _, u := range users {
				if err := w.Write(exportRecord(u)); err != nil {
					return fmt.Errorf("could not write user %s: %w", u.ID, err)
				}
			}

			if len(users) < page.Size {
				break
			}
		}

		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("could not write export: %w", err)
		}

		name := exportDir + "/users-" + time.Now().UTC().Format("20060102T150405") + ".csv"
		if _, err := store.Save(ctx, name, &buf); err != nil {
			return fmt.Errorf("could not save export: %w", err)
		}

		return nil
	}
}

func exportRecord(u User) []string {
	lastLogin := ""
	if u.LastLogin != nil {
		lastLogin = u.LastLogin.UTC().Format(time.RFC3339)
	}

	return []string{
		u.ID, u.Username, u.Email, u.FirstName, u.LastName,
		strconv.FormatBool(u.IsStaff), strconv.FormatBool(u.IsActive), strconv.FormatBool(u.IsSuperuser),
		u.DateJoined.UTC().Format(time.RFC3339), lastLogin,
	}
}
