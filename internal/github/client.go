// Package github is a thin pass-through client for the pieces of GitHub's
// REST API the dashboard needs: repository metadata, branches, and commits.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for GitHub client failures.
var (
	ErrUnreachable = errors.New("github unreachable")
	ErrNotFound    = errors.New("github resource not found")
	ErrRateLimited = errors.New("github rate limit exceeded")
	ErrTimeout     = errors.New("github request timeout")
)

// Client is the interface for the GitHub proxy.
type Client interface {
	GetRepo(ctx context.Context, token, owner, repo string) (*Repo, error)
	ListBranches(ctx context.Context, token, owner, repo string) ([]Branch, error)
	GetCommit(ctx context.Context, token, owner, repo, sha string) (*Commit, error)
}

// Repo is the subset of repository metadata the dashboard consumes.
type Repo struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
}

// Branch is a repository branch head.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
	Protected bool `json:"protected"`
}

// Commit is a single commit with its file-level diff stats.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
		Total     int `json:"total"`
	} `json:"stats"`
	Files []CommitFile `json:"files"`
}

// CommitFile is one changed file in a commit.
type CommitFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// HTTPClient implements Client against the GitHub REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new GitHub HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetRepo(ctx context.Context, token, owner, repo string) (*Repo, error) {
	var r Repo
	if err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s", owner, repo), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *HTTPClient) ListBranches(ctx context.Context, token, owner, repo string) ([]Branch, error) {
	var branches []Branch
	if err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/branches?per_page=100", owner, repo), &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

func (c *HTTPClient) GetCommit(ctx context.Context, token, owner, repo, sha string) (*Commit, error) {
	var commit Commit
	if err := c.get(ctx, token, fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, sha), &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func (c *HTTPClient) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
