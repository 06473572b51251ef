package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// ContextStore defines the context persistence the handlers depend on.
type ContextStore interface {
	CreateContext(ctx context.Context, c *models.Context) error
	GetContext(ctx context.Context, id uuid.UUID) (*models.Context, error)
	ListContexts(ctx context.Context, userID uuid.UUID) ([]*models.Context, error)
	DeactivateContext(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

var repoURLPattern = regexp.MustCompile(`^https://github\.com/[\w.-]+/[\w.-]+/?$`)

// NewCreateContextHandler returns the handler for POST /api/v1/contexts.
func NewCreateContextHandler(st ContextStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Name    string `json:"name"`
			RepoURL string `json:"repo_url"`
			Branch  string `json:"branch"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
			return
		}
		if !repoURLPattern.MatchString(req.RepoURL) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"repo_url must be a GitHub repository URL (https://github.com/owner/repo)", nil)
			return
		}
		if req.Branch == "" {
			req.Branch = "main"
		}

		now := time.Now().UTC()
		c := &models.Context{
			ID:        uuid.New(),
			UserID:    userID,
			Name:      req.Name,
			RepoURL:   req.RepoURL,
			Branch:    req.Branch,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateContext(r.Context(), c); err != nil {
			writeAnalysisError(w, err)
			return
		}
		response.Created(w, c)
	}
}

// NewListContextsHandler returns the handler for GET /api/v1/contexts.
func NewListContextsHandler(st ContextStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		contexts, err := st.ListContexts(r.Context(), userID)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		if contexts == nil {
			contexts = []*models.Context{}
		}
		response.JSON(w, contexts)
	}
}

// NewGetContextHandler returns the handler for GET /api/v1/contexts/{contextID}.
func NewGetContextHandler(st ContextStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		contextID, err := uuid.Parse(pathParam(r, "contextID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid context id", nil)
			return
		}

		c, err := st.GetContext(r.Context(), contextID)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		if c.UserID != userID {
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "You do not own this resource", nil)
			return
		}
		response.JSON(w, c)
	}
}

// NewDeactivateContextHandler returns the handler for DELETE /api/v1/contexts/{contextID}.
// Contexts are never removed; deactivation hides them and blocks new analyses.
func NewDeactivateContextHandler(st ContextStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		contextID, err := uuid.Parse(pathParam(r, "contextID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid context id", nil)
			return
		}

		if err := st.DeactivateContext(r.Context(), contextID, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Context not found", nil)
				return
			}
			writeAnalysisError(w, err)
			return
		}
		response.JSON(w, map[string]any{"deactivated": true})
	}
}
