package worker

import (
	"errors"
	"net/http"
)

// errTooManyRedirects is returned by redirectPolicy once maxHops redirects
// have been followed within a single fetch.
var errTooManyRedirects = errors.New("too many redirects")

// redirectPolicy caps the number of redirects http.Client will follow for a
// single request, matching the specification's 10-hop bound (§4.5 point 6).
func redirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return errTooManyRedirects
		}
		return nil
	}
}
