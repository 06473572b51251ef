package github

import (
	"context"
	"encoding/json"
	"time"

	"github.com/repopulse/repopulse/internal/cache"
)

// CachingClient wraps a Client with read-through Redis caching. GitHub
// responses change slowly relative to how often dashboards poll them;
// cache errors fall through to the underlying client.
type CachingClient struct {
	inner Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachingClient creates a caching wrapper around the given client.
func NewCachingClient(inner Client, c cache.Cache, ttl time.Duration) *CachingClient {
	return &CachingClient{inner: inner, cache: c, ttl: ttl}
}

func (c *CachingClient) GetRepo(ctx context.Context, token, owner, repo string) (*Repo, error) {
	key := cache.GitHubKey(owner, repo, "repo")
	var cached Repo
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}
	r, err := c.inner.GetRepo(ctx, token, owner, repo)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, r)
	return r, nil
}

func (c *CachingClient) ListBranches(ctx context.Context, token, owner, repo string) ([]Branch, error) {
	key := cache.GitHubKey(owner, repo, "branches")
	var cached []Branch
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}
	branches, err := c.inner.ListBranches(ctx, token, owner, repo)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, branches)
	return branches, nil
}

func (c *CachingClient) GetCommit(ctx context.Context, token, owner, repo, sha string) (*Commit, error) {
	// Commits are immutable, so a longer TTL would be safe; keep one policy.
	key := cache.GitHubKey(owner, repo, "commit:"+sha)
	var cached Commit
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}
	commit, err := c.inner.GetCommit(ctx, token, owner, repo, sha)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, commit)
	return commit, nil
}

func (c *CachingClient) lookup(ctx context.Context, key string, out any) bool {
	data, found, err := c.cache.Get(ctx, key)
	if err != nil || !found {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *CachingClient) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, data, c.ttl)
}
