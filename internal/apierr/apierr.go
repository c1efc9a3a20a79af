// Package apierr centralizes how the Control API turns a result or an
// internal error into the {success, data} / {success, error} envelope,
// adapted from the crawler's respondError-style gin.H helpers.
package apierr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/engine"
	"github.com/lattice-run/crawlhive/internal/store"
	"github.com/lattice-run/crawlhive/internal/task"
)

// envelope is the JSON shape returned by every Control API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK writes a 200 success envelope wrapping data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// Created writes a 201 success envelope wrapping data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, envelope{Success: true, Data: data})
}

// Write inspects err and aborts the request with the matching status code
// and a failure envelope. Unknown error types fall back to 500 with a
// generic message, so an unexpected internal error never leaks
// implementation detail to the client.
func Write(c *gin.Context, err error) {
	status := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: message})
}

// BadRequest writes a 400 failure envelope with message, for handler-local
// validation that has no corresponding domain sentinel error (e.g.
// malformed JSON body).
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Success: false, Error: message})
}

func classify(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, engine.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTaskRunning), errors.Is(err, domain.ErrTaskRunning), errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, domain.ErrMissingSeedURL),
		errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, domain.ErrInvalidMaxDepth),
		errors.Is(err, domain.ErrInvalidWorkerCount),
		errors.Is(err, domain.ErrInvalidRequestInterval),
		errors.Is(err, domain.ErrInvalidRetryTimes):
		return true
	default:
		return false
	}
}
