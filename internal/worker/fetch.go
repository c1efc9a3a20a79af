package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultHTTPClient builds an http.Client with the same timeout and
// redirect cap every Worker uses, for callers that need to fetch a URL
// outside of a task's worker pool (the Control API's download proxy).
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout:       requestTimeout,
		CheckRedirect: redirectPolicy(maxRedirects),
	}
}

// Fetch performs the same bounded GET a Worker performs for a frontier
// entry, without touching the frontier, robots cache, or record store. Used
// by the Control API's proxy-download endpoint, which fetches on a client's
// behalf outside of any task.
func Fetch(ctx context.Context, client *http.Client, rawURL, userAgent string) (statusCode int, contentType string, body []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, "", nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return 0, "", nil, fmt.Errorf("read body: %w", err)
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), buf, nil
}
