// Package mid provides app level middleware support.
package mid

import (
	"context"
	"errors"

	"github.com/jrazmi/taskdeck/infrastructure/identitycache"
	"github.com/jrazmi/taskdeck/infrastructure/web"
)

type ctxKey int

const (
	identityKey ctxKey = iota + 1
	userIDKey
	tokenKey
)

func setIdentity(ctx context.Context, identity identitycache.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the authenticated identity from the context.
func GetIdentity(ctx context.Context) (identitycache.Identity, error) {
	v, ok := ctx.Value(identityKey).(identitycache.Identity)
	if !ok {
		return identitycache.Identity{}, errors.New("identity not found in context")
	}

	return v, nil
}

func setUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user id from the context.
func GetUserID(ctx context.Context) (string, error) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return "", errors.New("user id not found in context")
	}

	return v, nil
}

func setToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// GetToken returns the bearer token the request authenticated with,
// regardless of whether it arrived in the Authorization header or the
// access_token query fallback.
func GetToken(ctx context.Context) (string, error) {
	v, ok := ctx.Value(tokenKey).(string)
	if !ok {
		return "", errors.New("token not found in context")
	}

	return v, nil
}

// isError tests if the Encoder has an error inside of it.
func isError(e web.Encoder) error {
	err, isError := e.(error)
	if isError {
		return err
	}
	return nil
}
