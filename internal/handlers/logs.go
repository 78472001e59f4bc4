package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"predictive_alerts/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errRangeOrder  = "'from' must be <= 'to'"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// queryRange reads the optional from/to query parameters. A date-only 'to'
// covers the whole day. On failure the 400 is already written.
func queryRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if qs := c.Query("from"); qs != "" {
		if from, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return from, to, false
		}
	}
	if qs := c.Query("to"); qs != "" {
		if to, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return from, to, false
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errRangeOrder})
		return from, to, false
	}
	return from, to, true
}

// @Summary      List pipeline events
// @Description  Filter the audit log by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'), event type and equipment. A date-only 'to' is end of day inclusive.
// @Tags         logs
// @Produce      json
// @Param        from          query   string  false  "Start of range"  example(2026-04-01)
// @Param        to            query   string  false  "End of range. Date-only treated as end of day."  example(2026-04-30)
// @Param        type          query   string  false  "Event type"  Enums(PROMOTED,SUPPRESSED,MERGED,REJECTED,BACKFILL,TRANSITION,VULNERABILITY,CORRELATION,MAINTENANCE)
// @Param        equipment_id  query   string  false  "Equipment tag"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	from, to, ok := queryRange(c)
	if !ok {
		return
	}
	f := service.LogFilter{
		From:        from,
		To:          to,
		Type:        strings.ToUpper(strings.TrimSpace(c.Query("type"))),
		EquipmentID: strings.TrimSpace(c.Query("equipment_id")),
	}
	events, err := h.services.EventLog.List(c.Request.Context(), f)
	if err != nil {
		h.respondServiceError(c, "failed to load logs", "logs_list_failed", err,
			"from", from, "to", to, "type", f.Type, "equipment_id", f.EquipmentID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2026-04-01T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
