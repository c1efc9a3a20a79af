// Package normalize canonicalizes absolute URLs so that equivalent URLs
// collapse to an identical string for frontier dedup keying.
//
// Adapted from the crawler's URL frontier normalizer: lowercase scheme/host,
// strip default ports, drop the fragment, sort query parameters, and clean
// the path. Unlike that implementation this package does not upgrade
// http to https and does not strip tracking query parameters — the
// specification calls for a byte-faithful canonical form, not content
// policy, so those decisions are left to the caller.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var (
	// ErrEmptyInput is returned for an empty raw URL.
	ErrEmptyInput = errors.New("normalize: empty input")
	// ErrMissingSchemeOrHost is returned for a URL missing scheme or host.
	ErrMissingSchemeOrHost = errors.New("normalize: missing scheme or host")
)

// URL applies deterministic transformations to rawURL so equivalent URLs
// produce identical strings: lowercase scheme/host, strip the fragment and
// default port, collapse dot-segments in the path, normalize percent-encoding,
// and sort query parameters by key (stable on repeated keys).
func URL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrEmptyInput
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrMissingSchemeOrHost
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = normalizeHost(parsed)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = normalizePath(parsed.Path)
	parsed.RawQuery = sortedQuery(parsed.Query())

	return parsed.String(), nil
}

// Idempotent asserts that applying URL twice yields the same result as
// applying it once; used by callers that want to assert the invariant
// rather than consult a test.
func Idempotent(rawURL string) (bool, error) {
	once, err := URL(rawURL)
	if err != nil {
		return false, err
	}
	twice, err := URL(once)
	if err != nil {
		return false, err
	}
	return once == twice, nil
}

// Hash returns the SHA-256 hex digest of the normalized form of rawURL.
func Hash(rawURL string) (string, error) {
	normalized, err := URL(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize hash: %w", err)
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Host returns the lowercased hostname (without port) of rawURL.
func Host(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize host: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrMissingSchemeOrHost
	}
	return strings.ToLower(parsed.Hostname()), nil
}

func normalizeHost(u *url.URL) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		return hostname
	}
	if defaultPort, ok := defaultPorts[u.Scheme]; ok && port == defaultPort {
		return hostname
	}
	return hostname + ":" + port
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if cleaned != "/" && strings.HasSuffix(p, "/") {
		cleaned += "/"
	}
	return cleaned
}

// sortedQuery renders url.Values with keys sorted lexicographically while
// preserving the relative order of repeated values for the same key.
func sortedQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	first := true
	for _, key := range keys {
		for _, val := range values[key] {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}
