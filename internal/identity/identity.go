// Package identity resolves request credentials to users.
//
// The backend never issues credentials itself. Each request presents either
// an authenticated-session token (cookie or header) or a bearer API key, and
// the resolvers below map that to a user record, in order, first match wins.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tabsdeclutter/tabs-declutter/internal/domain"
	"github.com/tabsdeclutter/tabs-declutter/internal/store"
)

const (
	SessionCookieName = "declutter_session"
	SessionHeaderName = "X-Declutter-Session"
)

type contextKey int

const userKey contextKey = iota

// Resolver maps request credentials to a user. Returning (nil, nil) means
// "no match, try the next resolver".
type Resolver func(ctx context.Context, r *http.Request) (*domain.User, error)

// UserFromContext extracts the resolved user from the request context.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userKey).(*domain.User); ok {
		return u
	}
	return nil
}

// WithUser returns a context carrying the given user. Exposed for tests.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func sessionTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionHeaderName)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

// SessionResolver resolves the user bound to the current authenticated
// session, presented as a cookie or header token.
func SessionResolver(repo store.Repository) Resolver {
	return func(ctx context.Context, r *http.Request) (*domain.User, error) {
		token := sessionTokenFromRequest(r)
		if token == "" {
			return nil, nil
		}
		user, err := repo.GetUserBySessionToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return user, err
	}
}

// APIKeyResolver resolves the identity associated with a bearer API key.
func APIKeyResolver(repo store.Repository) Resolver {
	return func(ctx context.Context, r *http.Request) (*domain.User, error) {
		key := bearerToken(r)
		if key == "" {
			return nil, nil
		}
		user, err := repo.GetUserByAPIKey(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return user, err
	}
}

// FirstUserResolver resolves to the first user in the database regardless of
// credentials. Development fallback for single-user setups; wire it only
// behind the DEV_FALLBACK_USER flag.
func FirstUserResolver(repo store.Repository) Resolver {
	return func(ctx context.Context, _ *http.Request) (*domain.User, error) {
		user, err := repo.GetFirstUser(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if user != nil {
			slog.Warn("resolved request to first user via development fallback", "user_id", user.UserID)
		}
		return user, err
	}
}

// Chain runs resolvers in order and stops at the first hit.
func Chain(resolvers ...Resolver) Resolver {
	return func(ctx context.Context, r *http.Request) (*domain.User, error) {
		for _, resolve := range resolvers {
			user, err := resolve(ctx, r)
			if err != nil {
				return nil, err
			}
			if user != nil {
				return user, nil
			}
		}
		return nil, nil
	}
}

// NewChain builds the standard resolution order: authenticated session,
// then API key, then (development mode only) the first user in the database.
func NewChain(repo store.Repository, devFallback bool) Resolver {
	resolvers := []Resolver{
		SessionResolver(repo),
		APIKeyResolver(repo),
	}
	if devFallback {
		resolvers = append(resolvers, FirstUserResolver(repo))
	}
	return Chain(resolvers...)
}

// Middleware resolves the acting user and stores it in the request context.
// An unresolved user is not an error here; handlers decide whether the
// route requires one.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver(r.Context(), r)
			if err != nil {
				slog.Error("identity resolution failed", "error", err)
				http.Error(w, `{"success":false,"error":"failed to resolve identity"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
