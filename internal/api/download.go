package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/lattice-run/crawlhive/internal/apierr"
	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/worker"
)

var downloadClient = sync.OnceValue(worker.DefaultHTTPClient)

// Download handles GET /download?url=...: fetches a URL on behalf of a
// client using the same bounded fetch every Worker uses, bypassing the
// engine and any task's frontier or record store entirely.
func (h *handlers) Download(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		apierr.BadRequest(c, "url query parameter is required")
		return
	}

	statusCode, contentType, body, err := worker.Fetch(c.Request.Context(), downloadClient(), rawURL, domain.DefaultUserAgent)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(statusCodeOrOK(statusCode), contentType, body)
}

func statusCodeOrOK(statusCode int) int {
	if statusCode == 0 {
		return http.StatusOK
	}
	return statusCode
}
