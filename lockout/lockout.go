// Package lockout protects the login against brute force attacks.
// Failed logins are counted per lockout parameter, e.g. per username or per ip address.
// Once the failure limit is reached, further logins are rejected until the cool-off time passed.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mileusna/useragent"
)

const (
	ParamUsername  = "username"
	ParamIPAddress = "ip_address"
	ParamUserAgent = "user_agent"
)

var (
	ErrLockedOut     = errors.New("account locked: too many login attempts")
	ErrInvalidParams = errors.New("invalid lockout parameters")
)

// Attempt is a single login request.
type Attempt struct {
	Username  string
	IPAddress string
	UserAgent string
	Path      string
}

// Device returns a human friendly summary of the user agent, e.g. "Chrome v120.0 Windows v10.0".
func (a Attempt) Device() string {
	ua := useragent.Parse(a.UserAgent)

	var parts []string

	if ua.Name != "" || ua.Version != "" {
		parts = append(parts, fmt.Sprintf("%s v%s", ua.Name, ua.Version))
	}

	if ua.OS != "" || ua.OSVersion != "" {
		parts = append(parts, fmt.Sprintf("%s v%s", ua.OS, ua.OSVersion))
	}

	return strings.Join(parts, " ")
}

// Handler decides, if an Attempt is allowed.
type Handler interface {
	IsLocked(ctx context.Context, attempt Attempt) (bool, error)
	UserLoginFailed(ctx context.Context, attempt Attempt) error
	UserLoggedIn(ctx context.Context, attempt Attempt) error
	Reset(ctx context.Context, attempt Attempt) error
}

// Settings are the values of the axes settings.
type Settings struct {
	Enabled      bool
	FailureLimit int
	CoolOffTime  time.Duration
	// Parameters are checked independently. Combine parameters with "+",
	// e.g. "username+ip_address" to only lock a user coming from one address.
	Parameters     []string
	ResetOnSuccess bool
}

// paramSets returns the parameters as sets, each set is one lockout key.
func paramSets(params []string) ([][]string, error) {
	if len(params) == 0 {
		params = []string{ParamIPAddress}
	}

	sets := make([][]string, 0, len(params))

	for _, p := range params {
		set := strings.Split(p, "+")

		for i, param := range set {
			param = strings.TrimSpace(param)

			switch param {
			case ParamUsername, ParamIPAddress, ParamUserAgent:
				set[i] = param
			default:
				return nil, fmt.Errorf("%w: %q", ErrInvalidParams, p)
			}
		}

		sets = append(sets, set)
	}

	return sets, nil
}

func (a Attempt) value(param string) string {
	switch param {
	case ParamUsername:
		return strings.ToLower(strings.TrimSpace(a.Username))
	case ParamIPAddress:
		return a.IPAddress
	case ParamUserAgent:
		return a.UserAgent
	}

	return ""
}
