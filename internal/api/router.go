package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	GithubURLHandler      http.HandlerFunc
	GithubCallbackHandler http.HandlerFunc
	RefreshHandler        http.HandlerFunc

	CreateContextHandler     http.HandlerFunc
	ListContextsHandler      http.HandlerFunc
	GetContextHandler        http.HandlerFunc
	DeactivateContextHandler http.HandlerFunc

	GetRepoHandler      http.HandlerFunc
	ListBranchesHandler http.HandlerFunc
	GetCommitHandler    http.HandlerFunc

	StartAnalysisHandler http.HandlerFunc
	ListJobsHandler      http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	CancelHandler        http.HandlerFunc

	WorkerStatusHandler http.HandlerFunc
	StuckJobsHandler    http.HandlerFunc
	JobHealthHandler    http.HandlerFunc
	AutoFixHandler      http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/auth/github/url", orNotImplemented(deps.GithubURLHandler))
	r.Get("/api/v1/auth/github/callback", orNotImplemented(deps.GithubCallbackHandler))
	r.Post("/api/v1/auth/refresh", orNotImplemented(deps.RefreshHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/contexts", orNotImplemented(deps.CreateContextHandler))
		r.Get("/api/v1/contexts", orNotImplemented(deps.ListContextsHandler))
		r.Get("/api/v1/contexts/{contextID}", orNotImplemented(deps.GetContextHandler))
		r.Delete("/api/v1/contexts/{contextID}", orNotImplemented(deps.DeactivateContextHandler))

		r.Get("/api/v1/github/repos/{owner}/{repo}", orNotImplemented(deps.GetRepoHandler))
		r.Get("/api/v1/github/repos/{owner}/{repo}/branches", orNotImplemented(deps.ListBranchesHandler))
		r.Get("/api/v1/github/repos/{owner}/{repo}/commits/{sha}", orNotImplemented(deps.GetCommitHandler))

		r.Post("/api/v1/analysis", orNotImplemented(deps.StartAnalysisHandler))
		r.Get("/api/v1/analysis/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/analysis/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Post("/api/v1/analysis/cancel", orNotImplemented(deps.CancelHandler))

		r.Post("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.WorkerStatusHandler))
		r.Get("/api/v1/jobs/stuck", orNotImplemented(deps.StuckJobsHandler))
		r.Get("/api/v1/jobs/health", orNotImplemented(deps.JobHealthHandler))
		r.Post("/api/v1/jobs/autofix", orNotImplemented(deps.AutoFixHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
