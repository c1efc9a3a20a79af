package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lattice-run/crawlhive/internal/apierr"
	"github.com/lattice-run/crawlhive/internal/domain"
)

// MaxPageSize bounds /tasks/{id}/urls' limit query parameter.
const MaxPageSize = 250

const defaultPageSize = 50

// exportPageSize is the page size used internally by Export to page through
// every record without holding the whole result set's query open at once.
const exportPageSize = 500

// ListURLs handles GET /tasks/{id}/urls.
func (h *handlers) ListURLs(c *gin.Context) {
	taskID := c.Param("id")
	filter := domain.RecordFilter{
		Status:      domain.RecordStatus(c.Query("status")),
		URLPrefix:   c.Query("prefix"),
		Extension:   c.Query("extension"),
		ContentType: c.Query("content_type"),
	}
	limit, offset := parseLimitOffset(c, defaultPageSize, 0)

	records, err := h.records.ListURLs(c.Request.Context(), taskID, filter, domain.Pagination{Limit: limit, Offset: offset})
	if err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, gin.H{"records": records, "limit": limit, "offset": offset})
}

// Stats handles GET /tasks/{id}/stats.
func (h *handlers) Stats(c *gin.Context) {
	stats, err := h.records.AggregateStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	apierr.OK(c, stats)
}

// Export handles GET /tasks/{id}/export: every record for the task as one
// JSON array, paged internally so a large task doesn't require the store to
// materialize an unbounded result set in one query.
func (h *handlers) Export(c *gin.Context) {
	taskID := c.Param("id")
	ctx := c.Request.Context()

	all := make([]domain.URLRecord, 0)
	offset := 0
	for {
		page, err := h.records.ListURLs(ctx, taskID, domain.RecordFilter{}, domain.Pagination{Limit: exportPageSize, Offset: offset})
		if err != nil {
			apierr.Write(c, err)
			return
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			break
		}
		offset += exportPageSize
	}
	apierr.OK(c, all)
}

// parseLimitOffset reads and clamps the limit/offset query parameters.
func parseLimitOffset(c *gin.Context, defaultLimit, defaultOffset int) (limit, offset int) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	offset = defaultOffset
	if raw := c.Query("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
