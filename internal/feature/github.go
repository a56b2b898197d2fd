package feature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
)

const (
	// DefaultGitHubAPI is the public GitHub REST endpoint.
	DefaultGitHubAPI = "https://api.github.com"
	// GitHubTokenKey stores the optional personal access token.
	GitHubTokenKey = "github_token"

	searchCacheTTL  = 5 * time.Minute
	searchPageSize  = "10"
	githubMediaType = "application/vnd.github.v3+json"
)

var (
	// ErrRateLimited is returned when GitHub answers 403.
	ErrRateLimited = errors.New("github rate limit exceeded")
	// ErrSearchKind is returned for a search type other than users or repositories.
	ErrSearchKind = errors.New("unsupported search type")
)

type cachedSearch struct {
	result *models.SearchResult
	at     time.Time
}

// GitHubSearch queries the GitHub search API for users and repositories and
// caches results in memory.
type GitHubSearch struct {
	toggle
	store  kv.Store
	client *http.Client
	base   string
	now    func() time.Time
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedSearch
}

// GitHubOption configures a GitHubSearch.
type GitHubOption func(*GitHubSearch)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHubSearch) { g.client = c }
}

// WithAPIBase points the client at another GitHub API root.
func WithAPIBase(base string) GitHubOption {
	return func(g *GitHubSearch) { g.base = strings.TrimRight(base, "/") }
}

// WithSearchClock replaces time.Now for cache expiry.
func WithSearchClock(now func() time.Time) GitHubOption {
	return func(g *GitHubSearch) { g.now = now }
}

func NewGitHubSearch(store kv.Store, log *zap.Logger, opts ...GitHubOption) *GitHubSearch {
	if log == nil {
		log = zap.NewNop()
	}
	g := &GitHubSearch{
		toggle: toggle{on: true},
		store:  store,
		client: http.DefaultClient,
		base:   DefaultGitHubAPI,
		now:    time.Now,
		log:    log.With(zap.String("feature", message.GithubSearch)),
		cache:  make(map[string]cachedSearch),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHubSearch) Name() string { return message.GithubSearch }

func (g *GitHubSearch) Init(ctx context.Context) error {
	enabled, err := LoadState(ctx, g.store, g.Name())
	if err != nil {
		return err
	}
	g.set(enabled)
	return nil
}

func (g *GitHubSearch) SetEnabled(_ context.Context, enabled bool) { g.set(enabled) }

func (g *GitHubSearch) Cleanup() { g.ClearCache() }

func (g *GitHubSearch) Handle(ctx context.Context, req message.Request) any {
	switch r := req.(type) {
	case message.Search:
		if r.Query == "" {
			g.log.Warn("empty search query")
			return models.SearchResponse{Status: models.Fail("Empty search query")}
		}
		result, err := g.Search(ctx, r.Query, r.Kind)
		switch {
		case err == nil:
			return models.SearchResponse{Status: models.OK(), Result: result}
		case errors.Is(err, ErrRateLimited):
			return models.SearchResponse{Status: models.Fail("GitHub API rate limit exceeded")}
		case errors.Is(err, ErrSearchKind):
			return models.SearchResponse{Status: models.Fail("Unsupported search type")}
		default:
			return models.SearchResponse{Status: models.Fail("GitHub search failed")}
		}
	case message.SetToken:
		if err := g.SetToken(ctx, r.Token); err != nil {
			g.log.Error("failed to save token", zap.Error(err))
			return models.Fail("Failed to save token")
		}
		return models.OK()
	case message.ClearCache:
		g.ClearCache()
		return models.OK()
	default:
		return models.Fail(message.ErrUnknownAction.Error())
	}
}

// Search returns up to ten results of kind ("users" or "repositories",
// default "repositories") matching query. Results are served from cache for
// five minutes.
func (g *GitHubSearch) Search(ctx context.Context, query, kind string) (*models.SearchResult, error) {
	if kind == "" {
		kind = "repositories"
	}
	if kind != "users" && kind != "repositories" {
		return nil, fmt.Errorf("%w: %q", ErrSearchKind, kind)
	}

	cacheKey := kind + ":" + query
	if res, ok := g.cached(cacheKey); ok {
		g.log.Debug("returning cached results", zap.String("query", query))
		return res, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("per_page", searchPageSize)
	endpoint := fmt.Sprintf("%s/search/%s?%s", g.base, kind, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", githubMediaType)

	token, _, err := kv.Lookup[string](ctx, g.store, GitHubTokenKey)
	if err != nil {
		g.log.Warn("failed to load token", zap.Error(err))
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Error("github search error", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		g.log.Warn("github api rate limit exceeded")
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("github api error: %d", resp.StatusCode)
		g.log.Error("github search error", zap.Error(err))
		return nil, err
	}

	var result models.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		g.log.Error("github search error", zap.Error(err))
		return nil, fmt.Errorf("decode search result: %w", err)
	}

	g.mu.Lock()
	g.cache[cacheKey] = cachedSearch{result: &result, at: g.now()}
	g.mu.Unlock()

	g.log.Info("search completed",
		zap.String("query", query),
		zap.String("type", kind),
		zap.Int("total_count", result.TotalCount),
	)
	return &result, nil
}

// SetToken stores token for authenticated searches; an empty token removes it.
func (g *GitHubSearch) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return g.store.Remove(ctx, GitHubTokenKey)
	}
	return kv.Put(ctx, g.store, GitHubTokenKey, token)
}

// ClearCache drops every cached result.
func (g *GitHubSearch) ClearCache() {
	g.mu.Lock()
	clear(g.cache)
	g.mu.Unlock()
	g.log.Debug("search cache cleared")
}

func (g *GitHubSearch) cached(key string) (*models.SearchResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[key]
	if !ok {
		return nil, false
	}
	if g.now().Sub(entry.at) >= searchCacheTTL {
		delete(g.cache, key)
		return nil, false
	}
	return entry.result, true
}
