package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey      contextKey = "user_id"
	githubTokenKey contextKey = "github_token"
)

func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func GetUserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return id, ok
}

func setGithubToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, githubTokenKey, token)
}

// GetGithubToken returns the caller-supplied GitHub access token, if any,
// forwarded via the X-GitHub-Token header for proxy calls and analysis
// payloads.
func GetGithubToken(r *http.Request) string {
	token, _ := r.Context().Value(githubTokenKey).(string)
	return token
}
