package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lmasson/giftwise-api/internal/service"
)

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler struct {
	service *service.MetricsService
}

// NewMetricsHandler creates a new handler.
func NewMetricsHandler(svc *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{service: svc}
}

// Handle serves the Prometheus exposition format.
func (h *MetricsHandler) Handle(c *gin.Context) {
	h.service.Handler().ServeHTTP(c.Writer, c.Request)
}
