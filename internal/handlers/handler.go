package handlers

import (
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewHandler constructs a new HTTP handler with dependencies. m may be nil,
// in which case /metrics serves the default prometheus registry.
func NewHandler(services *service.Service, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{services: services, log: log, metrics: m}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// live client status over websocket, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		api.POST("/measurements/batch", h.processBatch)
		h.registerAlertRoutes(api)
		h.registerEquipmentRoutes(api)
		h.registerClientRoutes(api)
		api.PUT("/risk-profiles", h.upsertProfile)
		api.GET("/reports/snapshot", h.reportSnapshot)
		api.GET("/logs", h.getLogs)
	}
}

func (h *Handler) registerAlertRoutes(api *gin.RouterGroup) {
	alerts := api.Group("/alerts")
	{
		alerts.GET("", h.listAlerts)
		alerts.GET("/:id", h.getAlert)
		alerts.POST("/:id/validate", h.validateAlert)
		alerts.POST("/:id/false-positive", h.markFalsePositive)
		alerts.POST("/:id/close", h.closeAlert)
	}
}

func (h *Handler) registerEquipmentRoutes(api *gin.RouterGroup) {
	eq := api.Group("/equipment")
	{
		eq.POST("", h.registerEquipment)
		eq.GET("/:id", h.getEquipment)
		eq.POST("/:id/deactivate", h.deactivateEquipment)
		eq.POST("/:id/maintenance", h.recordMaintenance)
		eq.POST("/:id/vulnerability", h.recomputeVulnerability)
	}
}

func (h *Handler) registerClientRoutes(api *gin.RouterGroup) {
	clients := api.Group("/clients/:client")
	{
		clients.GET("/equipment", h.listEquipment)
		clients.GET("/vulnerabilities", h.listVulnerabilities)
		clients.POST("/correlate", h.correlate)
		clients.GET("/clusters", h.listClusters)
		clients.GET("/risk-profile", h.resolveProfile)
		clients.GET("/status", h.clientStatus)
	}
}
