package mid

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/infrastructure/identitycache"
	"github.com/jrazmi/taskdeck/infrastructure/web"
)

// Authenticator resolves a bearer token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identitycache.Identity, error)
}

// Authenticate validates the Authorization header and stores the resolved
// identity in the context for downstream handlers.
func Authenticate(auth Authenticator) web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			token := bearerToken(r)
			if token == "" {
				return errs.Newf(errs.Unauthenticated, "authorization header missing")
			}

			identity, err := auth.Authenticate(ctx, token)
			if err != nil {
				return errs.New(errs.Unauthenticated, err)
			}

			ctx = setIdentity(ctx, identity)
			ctx = setUserID(ctx, identity.UserID)
			ctx = setToken(ctx, token)

			return next(ctx, r)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		// Browsers cannot set headers on websocket dials, so the token may
		// arrive as a query parameter instead.
		return r.URL.Query().Get("access_token")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
