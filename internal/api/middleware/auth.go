package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/auth"
	"github.com/repopulse/repopulse/pkg/models"
)

// TokenValidator validates a JWT access token into an identity.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Identity, error)
}

// UserResolver resolves a GitHub id into an internal user. Used as the
// fallback when the token identity lacks a direct user id.
type UserResolver interface {
	FindUserByGithubID(ctx context.Context, githubID int64) (*models.User, error)
}

// Auth provides JWT authentication middleware.
type Auth struct {
	tokens TokenValidator
	users  UserResolver
}

// NewAuth creates a new Auth middleware.
func NewAuth(tokens TokenValidator, users UserResolver) *Auth {
	return &Auth{tokens: tokens, users: users}
}

// Authenticate validates the Bearer token and sets the resolved user id in
// the request context. Tokens carrying only a GitHub id are resolved
// through the user store.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		identity, err := a.tokens.ValidateToken(raw)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired token", nil)
			return
		}

		userID := identity.UserID
		if userID == uuid.Nil {
			user, err := a.users.FindUserByGithubID(r.Context(), identity.GithubID)
			if err != nil {
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "No account for this token", nil)
				return
			}
			userID = user.ID
		}

		ctx := SetUserID(r.Context(), userID)
		if ghToken := r.Header.Get("X-GitHub-Token"); ghToken != "" {
			ctx = setGithubToken(ctx, ghToken)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
