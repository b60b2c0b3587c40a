// Package identity carries the caller's identity (an email-like string used
// to parameterize row-level security) through a request's context.Context.
//
// The value is bound to one logical request's context chain and cannot leak
// across concurrently served requests: set it once at the start of a tool
// invocation, read it wherever the gateway needs it.
package identity

import "context"

type contextKey struct{}

// WithEmail returns a child context carrying the caller's email.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, contextKey{}, email)
}

// Email returns the caller's email from the context, if set.
func Email(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(contextKey{}).(string)
	if !ok || email == "" {
		return "", false
	}
	return email, true
}
