package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"predictive_alerts/internal/models"
	"predictive_alerts/internal/notify"
	"predictive_alerts/internal/service"

	"github.com/gin-gonic/gin"
)

// BatchRequest is the body of POST /api/v1/measurements/batch.
type BatchRequest struct {
	ClientID string              `json:"client_id" binding:"required" example:"acme"`
	Payloads []models.RawPayload `json:"payloads" binding:"required"`
	// Optional per-batch notification policy; the configured one is used when absent.
	Notification *NotificationPolicy `json:"notification,omitempty"`
}

// NotificationPolicy overrides who hears about the alerts of one batch.
type NotificationPolicy struct {
	Recipients      []string `json:"recipients"`
	Channels        []string `json:"channels" example:"EMAIL,NATS"`
	MinimumSeverity int      `json:"minimum_severity" example:"2"`
}

// BatchInterrupted is returned when a batch stops early. Alerts already
// committed stay committed and are listed in Partial.
type BatchInterrupted struct {
	Error   string              `json:"error"`
	Partial service.BatchResult `json:"partial"`
}

func (p *NotificationPolicy) policy() *notify.Policy {
	if p == nil {
		return nil
	}
	out := &notify.Policy{
		Recipients:      p.Recipients,
		MinimumSeverity: models.Severity(p.MinimumSeverity),
	}
	for _, ch := range p.Channels {
		out.Channels = append(out.Channels, notify.Channel(strings.ToUpper(strings.TrimSpace(ch))))
	}
	return out
}

// @Summary      Ingest a batch of measurements
// @Description  Normalizes, evaluates and filters every record. Record-level failures are listed in 'rejected' and do not fail the batch.
// @Tags         pipeline
// @Accept       json
// @Produce      json
// @Param        body  body      BatchRequest  true  "Source records"
// @Success      200   {object}  service.BatchResult
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string  "no applicable risk profile"
// @Failure      500   {object}  map[string]string
// @Failure      503   {object}  BatchInterrupted  "cancelled; work committed so far is in 'partial'"
// @Router       /api/v1/measurements/batch [post]
// @Security     BearerAuth
func (h *Handler) processBatch(c *gin.Context) {
	var req BatchRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	res, err := h.services.ProcessBatch(c.Request.Context(), service.BatchRequest{
		ClientID:     strings.TrimSpace(req.ClientID),
		Payloads:     req.Payloads,
		Notification: req.Notification.policy(),
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if h.log != nil {
			h.log.Infow("batch_interrupted", "client_id", req.ClientID, "err", err,
				"promoted", len(res.Promoted), "rejected", len(res.Rejected))
		}
		c.JSON(http.StatusServiceUnavailable, BatchInterrupted{Error: err.Error(), Partial: res})
		return
	}
	if err != nil {
		h.respondServiceError(c, "failed to process batch", "batch_failed", err,
			"client_id", req.ClientID, "records", len(req.Payloads))
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      List alerts
// @Tags         alerts
// @Produce      json
// @Param        client_id               query  string  false  "Client"
// @Param        equipment_id            query  string  false  "Equipment tag"
// @Param        severity                query  string  false  "Comma separated severities"  example(P1,P2)
// @Param        state                   query  string  false  "Comma separated states"  example(OPEN,VALIDATED)
// @Param        from                    query  string  false  "Created at or after"
// @Param        to                      query  string  false  "Created at or before"
// @Param        include_false_positive  query  bool    false  "Include false positives"
// @Param        limit                   query  int     false  "Page size (default 100, max 1000)"
// @Param        offset                  query  int     false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "count, alerts"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/alerts [get]
// @Security     BearerAuth
func (h *Handler) listAlerts(c *gin.Context) {
	from, to, ok := queryRange(c)
	if !ok {
		return
	}
	f := models.AlertFilter{
		ClientID:    strings.TrimSpace(c.Query("client_id")),
		EquipmentID: strings.TrimSpace(c.Query("equipment_id")),
		From:        from,
		To:          to,
	}
	for _, s := range splitList(c.Query("severity")) {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Severities = append(f.Severities, sev)
	}
	for _, s := range splitList(c.Query("state")) {
		f.States = append(f.States, models.AlertState(strings.ToUpper(s)))
	}
	var err error
	if v := c.Query("include_false_positive"); v != "" {
		if f.IncludeFalsePositive, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'include_false_positive'"})
			return
		}
	}
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}

	alerts, err := h.services.ListAlerts(c.Request.Context(), f)
	if err != nil {
		h.respondServiceError(c, "failed to load alerts", "alerts_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}

// @Summary      Get alert
// @Tags         alerts
// @Produce      json
// @Param        id   path      string  true  "Alert id"
// @Success      200  {object}  models.Alert
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/alerts/{id} [get]
// @Security     BearerAuth
func (h *Handler) getAlert(c *gin.Context) {
	a, err := h.services.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, "failed to load alert", "alert_get_failed", err, "alert_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Validate alert
// @Description  OPEN -> VALIDATED
// @Tags         alerts
// @Produce      json
// @Param        id   path      string  true  "Alert id"
// @Success      200  {object}  models.Alert
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "invalid transition"
// @Router       /api/v1/alerts/{id}/validate [post]
// @Security     BearerAuth
func (h *Handler) validateAlert(c *gin.Context) {
	h.transition(c, "validate", h.services.ValidateAlert)
}

// @Summary      Mark alert as false positive
// @Description  OPEN or VALIDATED -> FALSE_POSITIVE. The alert is closed.
// @Tags         alerts
// @Produce      json
// @Param        id   path      string  true  "Alert id"
// @Success      200  {object}  models.Alert
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "invalid transition"
// @Router       /api/v1/alerts/{id}/false-positive [post]
// @Security     BearerAuth
func (h *Handler) markFalsePositive(c *gin.Context) {
	h.transition(c, "false_positive", h.services.MarkFalsePositive)
}

// @Summary      Close alert
// @Description  VALIDATED -> CLOSED
// @Tags         alerts
// @Produce      json
// @Param        id   path      string  true  "Alert id"
// @Success      200  {object}  models.Alert
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "invalid transition"
// @Router       /api/v1/alerts/{id}/close [post]
// @Security     BearerAuth
func (h *Handler) closeAlert(c *gin.Context) {
	h.transition(c, "close", h.services.CloseAlert)
}

func (h *Handler) transition(c *gin.Context, action string, apply func(ctx context.Context, id string) (models.Alert, error)) {
	id := c.Param("id")
	a, err := apply(c.Request.Context(), id)
	if err != nil {
		uid, _ := c.Get(ctxUserID)
		h.respondServiceError(c, "failed to update alert", "alert_"+action+"_failed", err,
			"alert_id", id, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, a)
}

// splitList splits a comma separated query value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + key + "'"})
		return 0, false
	}
	return n, true
}
