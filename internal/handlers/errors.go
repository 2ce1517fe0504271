package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"reward-ledger/internal/jobs"
	"reward-ledger/internal/services"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var validation *services.ValidationError
	var configuration *services.ConfigurationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrDailyCapExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrSystemPaused), errors.Is(err, services.ErrConfigUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &configuration),
		errors.Is(err, services.ErrUnknownEventType),
		errors.Is(err, services.ErrPreviouslyFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrLockNotFound),
		errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, jobs.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConcurrencyConflict),
		errors.Is(err, services.ErrWalletInUse),
		errors.Is(err, jobs.ErrJobRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Unexpected errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
