package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/auth"
)

// AuthService defines the auth operations the handlers depend on.
type AuthService interface {
	AuthURL(state string) string
	Callback(ctx context.Context, code string) (*auth.CallbackResult, error)
	RefreshAccessToken(refreshToken string) (*auth.TokenPair, error)
}

// NewGithubURLHandler returns the handler for GET /api/v1/auth/github/url.
func NewGithubURLHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		response.JSON(w, map[string]string{"url": svc.AuthURL(state)})
	}
}

// NewGithubCallbackHandler returns the handler for GET /api/v1/auth/github/callback.
func NewGithubCallbackHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "code is required", nil)
			return
		}

		result, err := svc.Callback(r.Context(), code)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "OAUTH_FAILED", "GitHub login failed", nil)
			return
		}

		response.JSON(w, map[string]any{
			"user":         result.User,
			"tokens":       result.Tokens,
			"github_token": result.GithubToken,
		})
	}
}

// NewRefreshHandler returns the handler for POST /api/v1/auth/refresh.
func NewRefreshHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token is required", nil)
			return
		}

		pair, err := svc.RefreshAccessToken(req.RefreshToken)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired refresh token", nil)
			return
		}
		response.JSON(w, pair)
	}
}
