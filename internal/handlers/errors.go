package handlers

import (
	"context"
	"errors"
	"net/http"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errInvalidBodyPref = "invalid body: "
	errInternal        = "internal error"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps a service error onto the HTTP status a client should see.
// Zero means the error is not a caller mistake.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, alerting.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlertNotFound), errors.Is(err, service.ErrEquipmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, alerting.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, alerting.ErrNoApplicableProfile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return 0
}

// respondServiceError writes err as JSON. Known domain errors keep their
// message; anything else is logged under logKey and reported as userMsg.
func (h *Handler) respondServiceError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	if code := statusFor(err); code != 0 {
		if h.log != nil {
			h.log.Infow(logKey, append([]interface{}{"err", err, "status", code}, kv...)...)
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err, kv...)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}
