package api

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/go-arrower/api/postgres"
	"github.com/go-arrower/api/secret"
)

// Config is the process wide configuration.
// It is assembled once by Compose and not changed afterwards.
// Each section is contributed by the settings fragment of the same name.
type Config struct {
	OrganisationName string      `mapstructure:"organisation_name" json:"organisationName"`
	ApplicationName  string      `mapstructure:"application_name"  json:"applicationName"`
	InstanceName     string      `mapstructure:"instance_name"     json:"instanceName"`
	Environment      Environment `mapstructure:"environment"       json:"environment"`
	Debug            bool        `mapstructure:"debug"             json:"debug"`

	SecretKey    secret.Secret `mapstructure:"secret_key"    json:"secretKey"`
	TimeZone     string        `mapstructure:"time_zone"     json:"timeZone"`
	LanguageCode string        `mapstructure:"language_code" json:"languageCode"`

	HTTP          HTTP     `mapstructure:"http"           json:"http"`
	Logging       Logging  `mapstructure:"logging"        json:"logging"`
	InstalledApps []string `mapstructure:"installed_apps" json:"installedApps"`
	Auth          Auth     `mapstructure:"auth"           json:"auth"`

	Databases map[string]Database `mapstructure:"databases" json:"databases"`

	Security      Security      `mapstructure:"security"    json:"security"`
	Storage       Storage       `mapstructure:"storage"     json:"storage"`
	REST          REST          `mapstructure:"rest"        json:"rest"`
	ErrorTracking ErrorTracking `mapstructure:"sentry"      json:"sentry"`
	Profiling     Profiling     `mapstructure:"silk"        json:"silk"`
	Schema        Schema        `mapstructure:"spectacular" json:"spectacular"`
	TaskQueue     TaskQueue     `mapstructure:"celery"      json:"celery"`

	Caches map[string]Cache `mapstructure:"caches" json:"caches"`

	Lockout Lockout `mapstructure:"axes" json:"axes"`
}

const (
	LocalEnv       Environment = "local"
	TestEnv        Environment = "test"
	DevelopmentEnv Environment = "dev"
	ProductionEnv  Environment = "prod"
)

// Environments is the list of all supported environments.
func Environments() []Environment {
	return []Environment{LocalEnv, TestEnv, DevelopmentEnv, ProductionEnv}
}

type Environment string

// DefaultDatabaseAlias is the connection every component uses,
// unless configured otherwise.
const DefaultDatabaseAlias = "default"

type (
	HTTP struct {
		Port                  int  `mapstructure:"port"                    json:"port"`
		StatusEndpointEnabled bool `mapstructure:"status_endpoint_enabled" json:"statusEndpointEnabled"`
		StatusEndpointPort    int  `mapstructure:"status_endpoint_port"    json:"statusEndpointPort"`
	}

	Logging struct {
		Level     string `mapstructure:"level"      json:"level"`
		Format    string `mapstructure:"format"     json:"format"`
		AddSource bool   `mapstructure:"add_source" json:"addSource"`
		Loki      Loki   `mapstructure:"loki"       json:"loki"`
	}

	Loki struct {
		PushURL string            `mapstructure:"push_url" json:"pushURL"`
		Labels  map[string]string `mapstructure:"labels"   json:"labels"`
	}

	Auth struct {
		UserModel         string        `mapstructure:"user_model"          json:"userModel"`
		PasswordHashCost  int           `mapstructure:"password_hash_cost"  json:"passwordHashCost"`
		PasswordMinLength int           `mapstructure:"password_min_length" json:"passwordMinLength"`
		SessionCookieName string        `mapstructure:"session_cookie_name" json:"sessionCookieName"`
		SessionCookieAge  time.Duration `mapstructure:"session_cookie_age"  json:"sessionCookieAge"`
		LoginURL          string        `mapstructure:"login_url"           json:"loginURL"`
		LoginRedirectURL  string        `mapstructure:"login_redirect_url"  json:"loginRedirectURL"`
	}

	// Database describes one connection.
	// Port is kept as given in the settings and is converted when connecting.
	Database struct {
		Engine   string        `mapstructure:"engine"   json:"engine"`
		Name     string        `mapstructure:"name"     json:"name"`
		User     string        `mapstructure:"user"     json:"user"`
		Password secret.Secret `mapstructure:"password" json:"password"`
		Host     string        `mapstructure:"host"     json:"host"`
		Port     string        `mapstructure:"port"     json:"port"`
		Test     DatabaseTest  `mapstructure:"test"     json:"test"`

		SSLMode        string        `mapstructure:"ssl_mode"        json:"sslMode"`
		MaxConns       int           `mapstructure:"max_conns"       json:"maxConns"`
		ConnMaxAge     time.Duration `mapstructure:"conn_max_age"    json:"connMaxAge"`
		PoolerMode     string        `mapstructure:"pooler_mode"     json:"poolerMode"`
		ConnectRetries int           `mapstructure:"connect_retries" json:"connectRetries"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connectTimeout"`
	}

	DatabaseTest struct {
		Name string `mapstructure:"name" json:"name"`
	}

	Security struct {
		AllowedHosts         []string `mapstructure:"allowed_hosts"          json:"allowedHosts"`
		CSRFTrustedOrigins   []string `mapstructure:"csrf_trusted_origins"   json:"csrfTrustedOrigins"`
		CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"   json:"corsAllowedOrigins"`
		SSLRedirect          bool     `mapstructure:"ssl_redirect"           json:"sslRedirect"`
		HSTSSeconds          int      `mapstructure:"hsts_seconds"           json:"hstsSeconds"`
		HSTSIncludeSubdomain bool     `mapstructure:"hsts_include_subdomain" json:"hstsIncludeSubdomain"`
		ContentTypeNosniff   bool     `mapstructure:"content_type_nosniff"   json:"contentTypeNosniff"`
		XFrameOptions        string   `mapstructure:"x_frame_options"        json:"xFrameOptions"`
		SessionCookieSecure  bool     `mapstructure:"session_cookie_secure"  json:"sessionCookieSecure"`
	}

	Storage struct {
		Backend    string `mapstructure:"backend"     json:"backend"`
		MediaRoot  string `mapstructure:"media_root"  json:"mediaRoot"`
		MediaURL   string `mapstructure:"media_url"   json:"mediaURL"`
		StaticRoot string `mapstructure:"static_root" json:"staticRoot"`
		StaticURL  string `mapstructure:"static_url"  json:"staticURL"`
		DataRoot   string `mapstructure:"data_root"   json:"dataRoot"`
	}

	REST struct {
		PageSize      int               `mapstructure:"page_size"     json:"pageSize"`
		MaxPageSize   int               `mapstructure:"max_page_size" json:"maxPageSize"`
		ThrottleRates map[string]string `mapstructure:"throttle_rates" json:"throttleRates"`
	}

	ErrorTracking struct {
		Enabled          bool    `mapstructure:"enabled"            json:"enabled"`
		Host             string  `mapstructure:"host"               json:"host"`
		Port             int     `mapstructure:"port"               json:"port"`
		Hostname         string  `mapstructure:"hostname"           json:"hostname"`
		TracesSampleRate float64 `mapstructure:"traces_sample_rate" json:"tracesSampleRate"`
		SendDefaultPII   bool    `mapstructure:"send_default_pii"   json:"sendDefaultPII"`
	}

	Profiling struct {
		Enabled       bool `mapstructure:"enabled"         json:"enabled"`
		MaxRequests   int  `mapstructure:"max_requests"    json:"maxRequests"`
		InterceptSQL  bool `mapstructure:"intercept_sql"   json:"interceptSQL"`
		PprofEndpoint bool `mapstructure:"pprof_endpoint"  json:"pprofEndpoint"`
		AuthRequired  bool `mapstructure:"authentication"  json:"authentication"`
	}

	Schema struct {
		Title       string `mapstructure:"title"       json:"title"`
		Description string `mapstructure:"description" json:"description"`
		Version     string `mapstructure:"version"     json:"version"`
		Path        string `mapstructure:"path"        json:"path"`
	}

	TaskQueue struct {
		Enabled      bool          `mapstructure:"enabled"       json:"enabled"`
		Queue        string        `mapstructure:"queue"         json:"queue"`
		PoolSize     int           `mapstructure:"pool_size"     json:"poolSize"`
		PollInterval time.Duration `mapstructure:"poll_interval" json:"pollInterval"`
		Beat         []BeatEntry   `mapstructure:"beat_schedule" json:"beatSchedule"`
	}

	BeatEntry struct {
		Task     string `mapstructure:"task"     json:"task"`
		Schedule string `mapstructure:"schedule" json:"schedule"`
	}

	Cache struct {
		Backend   string        `mapstructure:"backend"    json:"backend"`
		Location  string        `mapstructure:"location"   json:"location"`
		Timeout   time.Duration `mapstructure:"timeout"    json:"timeout"`
		KeyPrefix string        `mapstructure:"key_prefix" json:"keyPrefix"`
		MaxItems  int           `mapstructure:"max_entries" json:"maxEntries"`
	}

	Lockout struct {
		Enabled          bool          `mapstructure:"enabled"            json:"enabled"`
		FailureLimit     int           `mapstructure:"failure_limit"      json:"failureLimit"`
		CoolOffTime      time.Duration `mapstructure:"cooloff_time"       json:"cooloffTime"`
		LockoutParameter []string      `mapstructure:"lockout_parameters" json:"lockoutParameters"`
		ResetOnSuccess   bool          `mapstructure:"reset_on_success"   json:"resetOnSuccess"`
		Cache            string        `mapstructure:"cache"              json:"cache"`
	}
)

// PortNumber returns the Port as a number.
func (d Database) PortNumber() (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(d.Port))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid port %q: %v", ErrConfigLoadFailed, d.Port, err) //nolint:errorlint // prevent err in api
	}

	return p, nil
}

// ForTesting returns the descriptor used while running the test suite:
// the test name overrides the database name, if set.
func (d Database) ForTesting() Database {
	if d.Test.Name != "" {
		d.Name = d.Test.Name
	}

	return d
}

// PostgresConfig returns the values to connect with, including the migrations of the api.
func (d Database) PostgresConfig(applicationName string) (postgres.Config, error) {
	port, err := d.PortNumber()
	if err != nil {
		return postgres.Config{}, err
	}

	return postgres.Config{
		Migrations:      postgres.Migrations,
		User:            d.User,
		Password:        d.Password.Secret(),
		Database:        d.Name,
		SSLMode:         d.SSLMode,
		Host:            d.Host,
		Port:            port,
		MaxConns:        d.MaxConns,
		ConnMaxAge:      d.ConnMaxAge,
		PoolerMode:      d.PoolerMode,
		ApplicationName: applicationName,
		ConnectRetries:  d.ConnectRetries,
		ConnectTimeout:  d.ConnectTimeout,
	}, nil
}

var ErrUnknownDatabase = errors.New("unknown database")

// Database returns the connection descriptor for alias.
func (c *Config) Database(alias string) (Database, error) {
	db, ok := c.Databases[alias]
	if !ok {
		return Database{}, fmt.Errorf("%w: %s", ErrUnknownDatabase, alias)
	}

	return db, nil
}

// ErrConfigLoadFailed is returned, if the composed settings cannot be decoded into Config.
var ErrConfigLoadFailed = errors.New("loading configuration failed")

// Viper is a wrapper around viper.Viper for configuration loading.
// The only purpose is to overwrite the Unmarshal method,
// so that secret.Secret, Environment and durations are decoded
// without the caller having to think about it.
type Viper struct {
	*viper.Viper
}

func (vip *Viper) Unmarshal(rawVal any, opts ...viper.DecoderConfigOption) error {
	opts = append([]viper.DecoderConfigOption{viper.DecodeHook(decodeHooks())}, opts...)

	err := vip.Viper.Unmarshal(rawVal, opts...)
	if err != nil {
		return fmt.Errorf("%w: could not decode configuration into struct: %v", ErrConfigLoadFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		allowedEnvironmentHookFunc(),
	)
}

func allowedEnvironmentHookFunc() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(Environment("")) {
			return data, nil
		}

		env := Environments()
		if v, ok := data.(string); ok && slices.Contains(env, Environment(v)) {
			return data, nil
		}

		e := make([]string, 0, len(env))
		for _, env := range env {
			e = append(e, string(env))
		}

		return data, fmt.Errorf("value is not allowed, use one of: %s", strings.Join(e, ", ")) //nolint:err113,lll // accept dynamic error
	}
}
