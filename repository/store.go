package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

var (
	ErrStore = errors.New("could not store repository data")
	ErrLoad  = errors.New("could not load repository data")
)

// Store is an interface to access the data of a repository as a whole,
// so it can be used in memory.
type Store interface {
	Store(fileName string, data any) error
	Load(fileName string, data any) error
}

var _ Store = (*noopStore)(nil)

type noopStore struct{}

func (noopStore) Store(string, any) error { return nil }

func (noopStore) Load(string, any) error { return nil }

var _ Store = (*JSONStore)(nil)

// JSONStore persists the data as a human-readable JSON file.
// It is not schema aware and uses the standard go marshalling:
// if the structs change, data can get lost.
// Only intended for local development and prototyping.
type JSONStore struct {
	fs  afero.Fs
	dir string

	mu sync.Mutex
}

// NewJSONStore stores the files in dir of fsys.
// Use afero.NewOsFs() to write to disc.
func NewJSONStore(fsys afero.Fs, dir string) (*JSONStore, error) {
	if err := fsys.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("%w: could not create dir %s: %v", ErrStore, dir, err) //nolint:errorlint // prevent err in api
	}

	return &JSONStore{fs: fsys, dir: dir, mu: sync.Mutex{}}, nil
}

func (s *JSONStore) Store(fileName string, data any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err) //nolint:errorlint // prevent err in api
	}

	err = afero.WriteFile(s.fs, filepath.Join(s.dir, fileName), b, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

// Load returns an error wrapping os.ErrNotExist, if nothing got stored yet.
func (s *JSONStore) Load(fileName string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := afero.ReadFile(s.fs, filepath.Join(s.dir, fileName))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	err = json.Unmarshal(b, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err) //nolint:errorlint // prevent err in api
	}

	return nil
}
