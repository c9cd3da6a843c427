package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sappump/internal/logger"
	"sappump/internal/service"
)

// Handler wires the read-only HTTP surface to the services. The station has
// no remote control endpoints: state changes come from the physical inputs.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		pump := api.Group("/pump")
		{
			pump.GET("/state", h.getState)
		}
		events := api.Group("/events")
		{
			events.GET("/", h.getEvents)
		}
	}

	// State stream over a WebSocket upgrade on the same port.
	router.GET("/ws", h.wsConnect)

	return router
}
