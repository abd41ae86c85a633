// Package secret keeps sensitive settings, like the secret key or database
// passwords, from being exposed by accident.
//
// A Secret prints as a mask in fmt, slog, JSON, YAML and text encodings.
// Only an explicit call to Secret reveals the value.
package secret

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"log/slog"
)

const mask = "******"

var ErrScanFailed = errors.New("failed to scan secret")

func New(secret string) Secret {
	return Secret{secret: &secret}
}

// Secret masks a sensitive value.
type Secret struct {
	// a pointer makes it harder to read the value by reflection.
	secret *string
}

// Secret returns the actual value of the Secret.
func (s Secret) Secret() string {
	if s.secret == nil {
		return ""
	}

	return *s.secret
}

// IsEmpty reports whether no value or an empty value is set.
func (s Secret) IsEmpty() bool {
	return s.Secret() == ""
}

func (s Secret) String() string {
	return mask
}

// LogValue masks the Secret as an attribute of slog.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(mask)
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String()) //nolint:wrapcheck // export the underlying error
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var des string
	if err := json.Unmarshal(data, &des); err != nil {
		return err //nolint:wrapcheck // export the underlying error
	}

	s.secret = &des

	return nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is used by the configuration decode hooks.
func (s *Secret) UnmarshalText(data []byte) error {
	text := string(data)
	s.secret = &text

	return nil
}

func (s *Secret) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		empty := ""
		s.secret = &empty
	case string:
		s.secret = &v
	case []byte:
		str := string(v)
		s.secret = &str
	default:
		return ErrScanFailed
	}

	return nil
}

func (s Secret) Value() (driver.Value, error) {
	return s.Secret(), nil
}

var (
	_ slog.LogValuer = Secret{}
	_ driver.Valuer  = Secret{}
)
