// Package ctx holds the keys shared between packages to put values into a context.Context.
package ctx

// CTXKey is the type used by all keys put in a context.
// As recommended by the package context, the api defines and uses its own data type for keys in the use of WithValue.
type CTXKey string

const (
	// CtxAuthUserID is set by the auth middleware for each request of a logged-in user.
	CtxAuthUserID CTXKey = "auth.user_id"

	// CtxRequestID is set for each incoming request.
	CtxRequestID CTXKey = "api.request_id"
)
