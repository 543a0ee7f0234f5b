package auth

import (
	"context"

	"mcsh-server/models"
)

type callerKey struct{}

// WithCaller stores the resolved identity on ctx.
func WithCaller(ctx context.Context, c models.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the identity on ctx, or the anonymous caller.
func CallerFrom(ctx context.Context) models.Caller {
	c, _ := ctx.Value(callerKey{}).(models.Caller)
	return c
}
