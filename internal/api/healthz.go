package api

import "github.com/gin-gonic/gin"

// Healthz handles GET /healthz: a liveness/readiness probe with no
// dependency checks, since the Control API has no external connection of
// its own beyond the Record Store Adapter that every handler already uses.
func (h *handlers) Healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
