// Package robots caches parsed robots.txt policies keyed by (scheme, host,
// port), adapted from the crawler's fetcher-level robots checker. A network
// failure fetching robots.txt is treated as allow-all and logged rather than
// blocking the task.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/lattice-run/crawlhive/internal/logger"
)

// DefaultTTL is how long a parsed policy is trusted before re-fetching.
const DefaultTTL = 24 * time.Hour

// DefaultFetchTimeout bounds the robots.txt HTTP request.
const DefaultFetchTimeout = 5 * time.Second

const maxRobotsBodyBytes = 512 * 1024

// Policy is the cached result for one origin: either a parsed robots.txt or
// an allow-all fallback (missing/errored robots.txt).
type Policy struct {
	Data     *robotstxt.RobotsData
	AllowAll bool
}

// Store memoizes parsed robots policies. The in-process map implementation
// is the default; RedisStore lets policies survive an Engine Registry
// restart.
type Store interface {
	Get(key string) (Policy, bool)
	Set(key string, policy Policy, ttl time.Duration)
}

// Checker answers can-fetch queries against cached robots.txt policies.
type Checker struct {
	store      Store
	httpClient *http.Client
	ttl        time.Duration
	logger     logger.Interface

	inFlight   map[string]*sync.Once
	inFlightMu sync.Mutex
}

// NewChecker builds a Checker backed by store. A nil store defaults to an
// in-process map.
func NewChecker(store Store, log logger.Interface) *Checker {
	if store == nil {
		store = NewMapStore()
	}
	return &Checker{
		store:      store,
		httpClient: &http.Client{Timeout: DefaultFetchTimeout},
		ttl:        DefaultTTL,
		logger:     log,
		inFlight:   make(map[string]*sync.Once),
	}
}

// CanFetch reports whether userAgent may fetch rawURL according to the
// cached (or freshly fetched) robots.txt for its origin.
func (c *Checker) CanFetch(ctx context.Context, rawURL, userAgent string) bool {
	policy := c.policyFor(ctx, rawURL)
	if policy.AllowAll || policy.Data == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return policy.Data.TestAgent(parsed.Path, userAgent)
}

// CrawlDelay returns the crawl-delay directive for userAgent, or 0 if none.
func (c *Checker) CrawlDelay(ctx context.Context, rawURL, userAgent string) time.Duration {
	policy := c.policyFor(ctx, rawURL)
	if policy.AllowAll || policy.Data == nil {
		return 0
	}
	group := policy.Data.FindGroup(userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (c *Checker) policyFor(ctx context.Context, rawURL string) Policy {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Policy{AllowAll: true}
	}

	key := originKey(parsed)

	if cached, ok := c.store.Get(key); ok {
		return cached
	}

	once := c.onceFor(key)
	var policy Policy
	once.Do(func() {
		policy = c.fetch(ctx, parsed)
		c.store.Set(key, policy, c.ttl)
	})
	c.clearOnce(key)

	if cached, ok := c.store.Get(key); ok {
		return cached
	}
	return policy
}

func (c *Checker) fetch(ctx context.Context, origin *url.URL) Policy {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", origin.Scheme, origin.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		c.logger.Warn("robots: build request failed, allowing", logger.Error(err))
		return Policy{AllowAll: true}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("robots: fetch failed, allowing", logger.String("url", robotsURL), logger.Error(err))
		return Policy{AllowAll: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return Policy{AllowAll: true}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		c.logger.Warn("robots: read body failed, allowing", logger.Error(err))
		return Policy{AllowAll: true}
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		c.logger.Warn("robots: parse failed, allowing", logger.Error(err))
		return Policy{AllowAll: true}
	}

	return Policy{Data: data}
}

func (c *Checker) onceFor(key string) *sync.Once {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	once, ok := c.inFlight[key]
	if !ok {
		once = &sync.Once{}
		c.inFlight[key] = once
	}
	return once
}

func (c *Checker) clearOnce(key string) {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	delete(c.inFlight, key)
}

func originKey(u *url.URL) string {
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return u.Scheme + "://" + u.Hostname() + ":" + port
}
