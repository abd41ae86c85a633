package api

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultFragments are the settings fragments shipped with the binary.
//
//go:embed settings/*.yaml
var DefaultFragments embed.FS

var (
	ErrFragmentMissing   = errors.New("settings fragment missing")
	ErrFragmentMalformed = errors.New("settings fragment malformed")
)

// Fragments returns the names of all settings fragments in the order
// they are merged. Later fragments override keys of earlier ones.
func Fragments() []string {
	return []string{
		"base",
		"logging",
		"application",
		"auth",
		"database",
		"security",
		"storage",
		"rest",
		"sentry",
		"silk",
		"spectacular",
		"celery",
		"cache",
		"axes",
	}
}

// DefaultDatabases returns the connection descriptors the fragments are merged on top of.
func DefaultDatabases() map[string]any {
	return map[string]any{
		DefaultDatabaseAlias: map[string]any{
			"engine":   "postgresql",
			"name":     "test_postgres",
			"user":     "postgres",
			"password": "your-super-secret-and-long-postgres-password",
			"host":     "pgbouncer",
			"port":     "5432",
			"test": map[string]any{
				"name": "test_postgres_temp",
			},
		},
	}
}

type composeOpts struct {
	fsys        fs.FS
	dir         string
	fragments   []string
	overrideDir string
	envPrefix   string
	strict      bool
}

// ComposeOption changes where and how Compose loads the settings.
type ComposeOption func(*composeOpts)

// WithFragments replaces the list of fragments to merge.
func WithFragments(names ...string) ComposeOption {
	return func(o *composeOpts) {
		o.fragments = names
	}
}

// WithFS loads the fragments from fsys in the directory dir, instead of DefaultFragments.
func WithFS(fsys fs.FS, dir string) ComposeOption {
	return func(o *composeOpts) {
		o.fsys = fsys
		o.dir = dir
	}
}

// WithOverrideDir merges a fragment file with the same name from dir,
// directly after the shipped fragment. Missing files in dir are skipped.
func WithOverrideDir(dir string) ComposeOption {
	return func(o *composeOpts) {
		o.overrideDir = dir
	}
}

// WithEnvPrefix sets the prefix of environment variables that override any key.
// An empty prefix disables environment overrides.
func WithEnvPrefix(prefix string) ComposeOption {
	return func(o *composeOpts) {
		o.envPrefix = prefix
	}
}

// WithStrict fails, if a fragment contains keys Config does not know about.
func WithStrict() ComposeOption {
	return func(o *composeOpts) {
		o.strict = true
	}
}

// Compose builds the Config used for the lifetime of the process.
// It starts with DefaultDatabases and merges all fragments in the order of Fragments.
// A fragment that does not exist or cannot be parsed aborts the composition.
func Compose(opts ...ComposeOption) (*Config, error) {
	o := &composeOpts{
		fsys:        DefaultFragments,
		dir:         "settings",
		fragments:   Fragments(),
		overrideDir: os.Getenv("API_SETTINGS_DIR"),
		envPrefix:   "API",
		strict:      false,
	}

	for _, opt := range opts {
		opt(o)
	}

	vip, err := composeViper(o)
	if err != nil {
		return nil, err
	}

	var decodeOpts []viper.DecoderConfigOption
	if o.strict {
		decodeOpts = append(decodeOpts, func(c *mapstructure.DecoderConfig) { c.ErrorUnused = true })
	}

	conf := &Config{}

	err = vip.Unmarshal(conf, decodeOpts...)
	if err != nil {
		return nil, err
	}

	return conf, nil
}

// ComposeViper returns the merged settings without decoding them,
// e.g. to print them for inspection.
func ComposeViper(opts ...ComposeOption) (*Viper, error) {
	o := &composeOpts{
		fsys:        DefaultFragments,
		dir:         "settings",
		fragments:   Fragments(),
		overrideDir: os.Getenv("API_SETTINGS_DIR"),
		envPrefix:   "API",
	}

	for _, opt := range opts {
		opt(o)
	}

	return composeViper(o)
}

func composeViper(o *composeOpts) (*Viper, error) {
	vip := viper.New()
	vip.SetConfigType("yaml")

	err := vip.MergeConfigMap(map[string]any{"databases": DefaultDatabases()})
	if err != nil {
		return nil, fmt.Errorf("%w: could not set base settings: %v", ErrConfigLoadFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	for _, name := range o.fragments {
		data, err := fs.ReadFile(o.fsys, path.Join(o.dir, name+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFragmentMissing, name, err) //nolint:errorlint // prevent err in api
		}

		if err := vip.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFragmentMalformed, name, err) //nolint:errorlint // prevent err in api
		}

		if o.overrideDir == "" {
			continue
		}

		data, err = os.ReadFile(filepath.Join(o.overrideDir, name+".yaml"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("%w: override %s: %v", ErrFragmentMissing, name, err) //nolint:errorlint,lll // prevent err in api
		}

		if err := vip.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: override %s: %v", ErrFragmentMalformed, name, err) //nolint:errorlint,lll // prevent err in api
		}
	}

	if o.envPrefix != "" {
		vip.SetEnvPrefix(o.envPrefix)
		vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		vip.AutomaticEnv()
	}

	return &Viper{Viper: vip}, nil
}
