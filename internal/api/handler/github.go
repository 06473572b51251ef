package handler

import (
	"errors"
	"net/http"

	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/github"
)

// NewGetRepoHandler returns the handler for GET /api/v1/github/repos/{owner}/{repo}.
func NewGetRepoHandler(gh github.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo, err := gh.GetRepo(r.Context(), mw.GetGithubToken(r), pathParam(r, "owner"), pathParam(r, "repo"))
		if err != nil {
			writeGithubError(w, err)
			return
		}
		response.JSON(w, repo)
	}
}

// NewListBranchesHandler returns the handler for GET /api/v1/github/repos/{owner}/{repo}/branches.
func NewListBranchesHandler(gh github.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branches, err := gh.ListBranches(r.Context(), mw.GetGithubToken(r), pathParam(r, "owner"), pathParam(r, "repo"))
		if err != nil {
			writeGithubError(w, err)
			return
		}
		response.JSON(w, branches)
	}
}

// NewGetCommitHandler returns the handler for GET /api/v1/github/repos/{owner}/{repo}/commits/{sha}.
func NewGetCommitHandler(gh github.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commit, err := gh.GetCommit(r.Context(), mw.GetGithubToken(r),
			pathParam(r, "owner"), pathParam(r, "repo"), pathParam(r, "sha"))
		if err != nil {
			writeGithubError(w, err)
			return
		}
		response.JSON(w, commit)
	}
}

func writeGithubError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, github.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "GitHub resource not found", nil)
	case errors.Is(err, github.ErrRateLimited):
		response.Error(w, http.StatusTooManyRequests, "GITHUB_RATE_LIMITED", "GitHub rate limit exceeded", nil)
	case errors.Is(err, github.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "GITHUB_TIMEOUT", "GitHub request timed out", nil)
	case errors.Is(err, github.ErrUnreachable):
		response.Error(w, http.StatusBadGateway, "GITHUB_UNAVAILABLE", "GitHub is not reachable", nil)
	default:
		writeAnalysisError(w, err)
	}
}
