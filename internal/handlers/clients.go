package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"predictive_alerts/internal/models"
	"predictive_alerts/internal/service"

	"github.com/gin-gonic/gin"
)

// RiskProfileRequest creates or replaces a risk profile. Leave client_id and
// equipment_type empty to edit the system default.
type RiskProfileRequest struct {
	ClientID      string                             `json:"client_id" example:"acme"`
	EquipmentType string                             `json:"equipment_type,omitempty" example:"MOTOR"`
	Name          string                             `json:"name,omitempty"`
	Thresholds    map[string]models.ChannelThreshold `json:"thresholds" binding:"required"`
}

// @Summary      List vulnerability flags
// @Tags         vulnerability
// @Produce      json
// @Param        client  path   string  true   "Client"
// @Param        active  query  bool    false  "Only active flags (default true)"
// @Success      200     {object}  map[string]interface{}  "count, flags"
// @Router       /api/v1/clients/{client}/vulnerabilities [get]
// @Security     BearerAuth
func (h *Handler) listVulnerabilities(c *gin.Context) {
	activeOnly := true
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'active'"})
			return
		}
		activeOnly = b
	}
	client := c.Param("client")
	flags, err := h.services.ListFlags(c.Request.Context(), client, activeOnly)
	if err != nil {
		h.respondServiceError(c, "failed to load vulnerabilities", "vulnerability_list_failed", err, "client_id", client)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(flags), "flags": flags})
}

// @Summary      Correlate alerts
// @Description  Groups the client's recurring alerts into root-cause clusters. Re-running over unchanged alerts changes nothing.
// @Tags         correlation
// @Produce      json
// @Param        client  path      string  true  "Client"
// @Success      200     {object}  map[string]interface{}  "created, updated, unchanged, retired, clusters"
// @Failure      400     {object}  map[string]string
// @Router       /api/v1/clients/{client}/correlate [post]
// @Security     BearerAuth
func (h *Handler) correlate(c *gin.Context) {
	client := c.Param("client")
	res, err := h.services.Correlate(c.Request.Context(), client)
	if err != nil {
		h.respondServiceError(c, "failed to correlate alerts", "correlate_failed", err, "client_id", client)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created":   res.Created,
		"updated":   res.Updated,
		"retired":   res.Retired,
		"unchanged": res.Unchanged,
		"clusters":  res.Clusters,
	})
}

// @Summary      List root-cause clusters
// @Tags         correlation
// @Produce      json
// @Param        client  path      string  true  "Client"
// @Success      200     {object}  map[string]interface{}  "count, clusters"
// @Router       /api/v1/clients/{client}/clusters [get]
// @Security     BearerAuth
func (h *Handler) listClusters(c *gin.Context) {
	client := c.Param("client")
	clusters, err := h.services.ListClusters(c.Request.Context(), client)
	if err != nil {
		h.respondServiceError(c, "failed to load clusters", "clusters_list_failed", err, "client_id", client)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(clusters), "clusters": clusters})
}

// @Summary      Upsert risk profile
// @Tags         risk-profiles
// @Accept       json
// @Produce      json
// @Param        body  body      RiskProfileRequest  true  "Profile"
// @Success      200   {object}  models.RiskProfile
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/risk-profiles [put]
// @Security     BearerAuth
func (h *Handler) upsertProfile(c *gin.Context) {
	var req RiskProfileRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	p, err := h.services.UpsertProfile(c.Request.Context(), models.RiskProfile{
		ClientID:      req.ClientID,
		EquipmentType: req.EquipmentType,
		Name:          req.Name,
		Thresholds:    req.Thresholds,
	})
	if err != nil {
		h.respondServiceError(c, "failed to store profile", "profile_upsert_failed", err,
			"client_id", req.ClientID, "equipment_type", req.EquipmentType)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Resolve risk profile
// @Description  Returns the profile that applies to the client and equipment type, falling back to the client and then the system default.
// @Tags         risk-profiles
// @Produce      json
// @Param        client  path   string  true   "Client"
// @Param        type    query  string  false  "Equipment type"  example(MOTOR)
// @Success      200     {object}  models.RiskProfile
// @Failure      422     {object}  map[string]string
// @Router       /api/v1/clients/{client}/risk-profile [get]
// @Security     BearerAuth
func (h *Handler) resolveProfile(c *gin.Context) {
	client := c.Param("client")
	typ := strings.ToUpper(strings.TrimSpace(c.Query("type")))
	p, err := h.services.ResolveProfile(c.Request.Context(), client, typ)
	if err != nil {
		h.respondServiceError(c, "failed to resolve profile", "profile_resolve_failed", err,
			"client_id", client, "equipment_type", typ)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Report snapshot
// @Description  Alerts, clusters and active vulnerability flags of a client. Defaults to the last 30 days.
// @Tags         reports
// @Produce      json
// @Param        client_id  query  string  true   "Client"
// @Param        from       query  string  false  "Start of range"
// @Param        to         query  string  false  "End of range"
// @Success      200        {object}  service.Report
// @Failure      400        {object}  map[string]string
// @Router       /api/v1/reports/snapshot [get]
// @Security     BearerAuth
func (h *Handler) reportSnapshot(c *gin.Context) {
	from, to, ok := queryRange(c)
	if !ok {
		return
	}
	q := service.ReportQuery{ClientID: strings.TrimSpace(c.Query("client_id")), From: from, To: to}
	r, err := h.services.Snapshot(c.Request.Context(), q)
	if err != nil {
		h.respondServiceError(c, "failed to build report", "report_failed", err, "client_id", q.ClientID)
		return
	}
	c.JSON(http.StatusOK, r)
}

// @Summary      Client status
// @Tags         monitoring
// @Produce      json
// @Param        client  path      string  true  "Client"
// @Success      200     {object}  service.ClientStatus
// @Router       /api/v1/clients/{client}/status [get]
// @Security     BearerAuth
func (h *Handler) clientStatus(c *gin.Context) {
	client := c.Param("client")
	st, err := h.services.ClientStatus(c.Request.Context(), client)
	if err != nil {
		h.respondServiceError(c, "failed to load status", "client_status_failed", err, "client_id", client)
		return
	}
	c.JSON(http.StatusOK, st)
}
