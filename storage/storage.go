// Package storage persists uploaded media files and serves them together with the static assets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
)

const (
	BackendFilesystem = "filesystem"
	BackendMemory     = "memory"
)

var (
	ErrStorage        = errors.New("storage error")
	ErrUnknownBackend = fmt.Errorf("%w: unknown backend", ErrStorage)
	ErrInvalidName    = fmt.Errorf("%w: invalid file name", ErrStorage)
	ErrNotFound       = fmt.Errorf("%w: file not found", ErrStorage)
)

// Storage stores files by name, e.g. "exports/users.csv".
type Storage interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, dir string) ([]string, error)
	// URL returns the path the file is served at.
	URL(name string) string
}

// Options are the values of the storage settings.
type Options struct {
	Backend    string
	MediaRoot  string
	MediaURL   string
	StaticRoot string
	StaticURL  string
	// DataRoot is the directory of files the api keeps for itself, e.g. exports.
	DataRoot string
}

// New returns the Storage for media files, as configured by opts.
func New(opts Options) (*FileStorage, error) {
	fsys, err := newFs(opts.Backend, opts.MediaRoot)
	if err != nil {
		return nil, err
	}

	return NewFileStorage(fsys, opts.MediaURL), nil
}

// NewPrivate returns the Storage below DataRoot.
// Its files are never served, Register does nothing.
func NewPrivate(opts Options) (*FileStorage, error) {
	fsys, err := newFs(opts.Backend, opts.DataRoot)
	if err != nil {
		return nil, err
	}

	return &FileStorage{fs: fsys, baseURL: "", private: true}, nil
}

func newFs(backend string, root string) (afero.Fs, error) {
	switch backend {
	case "", BackendFilesystem:
		if root == "" {
			return nil, fmt.Errorf("%w: root directory missing", ErrStorage)
		}

		if err := os.MkdirAll(root, 0o750); err != nil { //nolint:mnd // rwx for owner, rx for group
			return nil, fmt.Errorf("%w: could not create %s: %v", ErrStorage, root, err) //nolint:errorlint // prevent err in api
		}

		return afero.NewBasePathFs(afero.NewOsFs(), root), nil
	case BackendMemory:
		return afero.NewMemMapFs(), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
}

// NewFileStorage returns a Storage writing into fsys.
// All files are served below baseURL.
func NewFileStorage(fsys afero.Fs, baseURL string) *FileStorage {
	if baseURL == "" {
		baseURL = "/media/"
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &FileStorage{fs: fsys, baseURL: baseURL, private: false}
}

type FileStorage struct {
	fs      afero.Fs
	baseURL string
	private bool
}

var _ Storage = (*FileStorage)(nil)

func (s *FileStorage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		return nil, fmt.Errorf("%w: could not open file: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return f, nil
}

// Save writes content to name and returns the name the file is stored under.
// An existing file is overwritten.
func (s *FileStorage) Save(_ context.Context, name string, content io.Reader) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(filepath.Dir(name), 0o750); err != nil { //nolint:mnd // rwx for owner, rx for group
		return "", fmt.Errorf("%w: could not create directory: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	f, err := s.fs.Create(name)
	if err != nil {
		return "", fmt.Errorf("%w: could not create file: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return "", fmt.Errorf("%w: could not write file: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return name, nil
}

func (s *FileStorage) Delete(_ context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: could not delete file: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

func (s *FileStorage) Exists(_ context.Context, name string) (bool, error) {
	name, err := cleanName(name)
	if err != nil {
		return false, err
	}

	ok, err := afero.Exists(s.fs, name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return ok, nil
}

// List returns the names of all files in dir, sorted by name.
func (s *FileStorage) List(_ context.Context, dir string) ([]string, error) {
	if d := strings.TrimSpace(dir); d == "" || d == "." || d == "/" {
		dir = "."
	} else {
		cleaned, err := cleanName(dir)
		if err != nil {
			return nil, err
		}

		dir = cleaned
	}

	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("%w: could not list files: %v", ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	names := make([]string, 0, len(infos))

	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, path.Join(strings.TrimPrefix(dir, "."), info.Name()))
		}
	}

	return names, nil
}

// URL is empty for a private storage.
func (s *FileStorage) URL(name string) string {
	if s.private {
		return ""
	}

	return s.baseURL + strings.TrimPrefix(path.Clean("/"+name), "/")
}

// Register serves the files of the storage below its base URL.
// Files and directories starting with a dot are not served.
func (s *FileStorage) Register(router *echo.Echo) {
	if s.private {
		return
	}

	router.StaticFS(s.baseURL, publicFS{FS: afero.NewIOFS(s.fs)})
}

// publicFS hides all dot files, e.g. .data/ or .env.
type publicFS struct {
	fs.FS
}

func (p publicFS) Open(name string) (fs.File, error) {
	if isHidden(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return p.FS.Open(name) //nolint:wrapcheck // keep the fs errors for the file server
}

func isHidden(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") && segment != "." {
			return true
		}
	}

	return false
}

// RegisterStatic serves the static assets found in root below url.
func RegisterStatic(router *echo.Echo, root string, url string) {
	if root == "" || url == "" {
		return
	}

	router.StaticFS(url, os.DirFS(root))
}

// cleanName ensures the name stays inside the storage root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}

	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if strings.HasPrefix(cleaned, "../") || cleaned == ".." || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	if cleaned == "." {
		return "", ErrInvalidName
	}

	return cleaned, nil
}
