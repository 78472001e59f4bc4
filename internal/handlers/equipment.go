package handlers

import (
	"net/http"
	"time"

	"predictive_alerts/internal/models"

	"github.com/gin-gonic/gin"
)

// EquipmentRequest registers an equipment under a client.
type EquipmentRequest struct {
	ID             string    `json:"id" binding:"required" example:"MOTOR-001"`
	ClientID       string    `json:"client_id" binding:"required" example:"acme"`
	Type           string    `json:"type" binding:"required" example:"MOTOR"`
	Name           string    `json:"name,omitempty"`
	Location       string    `json:"location,omitempty"`
	InstalledAt    time.Time `json:"installed_at,omitempty"`
	TrackingStatus string    `json:"tracking_status,omitempty" example:"ONLINE"`
}

// MaintenanceRequest records one maintenance intervention.
type MaintenanceRequest struct {
	Type           string    `json:"type" binding:"required" example:"PREVENTIVE"`
	OccurredAt     time.Time `json:"occurred_at,omitempty"`
	Description    string    `json:"description,omitempty"`
	Technician     string    `json:"technician,omitempty"`
	RelatedAlertID string    `json:"related_alert_id,omitempty"`
}

// @Summary      Register equipment
// @Tags         equipment
// @Accept       json
// @Produce      json
// @Param        body  body      EquipmentRequest  true  "Equipment"
// @Success      201   {object}  models.Equipment
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/equipment [post]
// @Security     BearerAuth
func (h *Handler) registerEquipment(c *gin.Context) {
	var req EquipmentRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	eq, err := h.services.RegisterEquipment(c.Request.Context(), models.Equipment{
		ID:             req.ID,
		ClientID:       req.ClientID,
		Type:           req.Type,
		Name:           req.Name,
		Location:       req.Location,
		InstalledAt:    req.InstalledAt,
		TrackingStatus: models.TrackingStatus(req.TrackingStatus),
	})
	if err != nil {
		h.respondServiceError(c, "failed to register equipment", "equipment_register_failed", err, "equipment_id", req.ID)
		return
	}
	c.JSON(http.StatusCreated, eq)
}

// @Summary      Get equipment
// @Tags         equipment
// @Produce      json
// @Param        id   path      string  true  "Equipment tag"
// @Success      200  {object}  models.Equipment
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/equipment/{id} [get]
// @Security     BearerAuth
func (h *Handler) getEquipment(c *gin.Context) {
	eq, err := h.services.GetEquipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, "failed to load equipment", "equipment_get_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, eq)
}

// @Summary      List a client's equipment
// @Tags         equipment
// @Produce      json
// @Param        client  path      string  true  "Client"
// @Success      200     {object}  map[string]interface{}  "count, equipment"
// @Router       /api/v1/clients/{client}/equipment [get]
// @Security     BearerAuth
func (h *Handler) listEquipment(c *gin.Context) {
	list, err := h.services.ListEquipment(c.Request.Context(), c.Param("client"))
	if err != nil {
		h.respondServiceError(c, "failed to load equipment", "equipment_list_failed", err, "client_id", c.Param("client"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "equipment": list})
}

// @Summary      Deactivate equipment
// @Description  Deactivated equipment no longer accepts measurements.
// @Tags         equipment
// @Produce      json
// @Param        id   path      string  true  "Equipment tag"
// @Success      200  {object}  models.Equipment
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/equipment/{id}/deactivate [post]
// @Security     BearerAuth
func (h *Handler) deactivateEquipment(c *gin.Context) {
	eq, err := h.services.DeactivateEquipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, "failed to deactivate equipment", "equipment_deactivate_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, eq)
}

// @Summary      Record maintenance
// @Description  Appends a maintenance event and returns the recomputed vulnerability flag.
// @Tags         equipment
// @Accept       json
// @Produce      json
// @Param        id    path      string              true  "Equipment tag"
// @Param        body  body      MaintenanceRequest  true  "Maintenance event"
// @Success      200   {object}  models.VulnerabilityFlag
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/equipment/{id}/maintenance [post]
// @Security     BearerAuth
func (h *Handler) recordMaintenance(c *gin.Context) {
	var req MaintenanceRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	id := c.Param("id")
	flag, err := h.services.RecordMaintenance(c.Request.Context(), id, models.MaintenanceEvent{
		Type:           req.Type,
		OccurredAt:     req.OccurredAt,
		Description:    req.Description,
		Technician:     req.Technician,
		RelatedAlertID: req.RelatedAlertID,
	})
	if err != nil {
		h.respondServiceError(c, "failed to record maintenance", "maintenance_record_failed", err, "equipment_id", id)
		return
	}
	c.JSON(http.StatusOK, flag)
}

// @Summary      Recompute vulnerability
// @Tags         vulnerability
// @Produce      json
// @Param        id   path      string  true  "Equipment tag"
// @Success      200  {object}  models.VulnerabilityFlag
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/equipment/{id}/vulnerability [post]
// @Security     BearerAuth
func (h *Handler) recomputeVulnerability(c *gin.Context) {
	flag, err := h.services.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, "failed to recompute vulnerability", "vulnerability_recompute_failed", err, "equipment_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, flag)
}
