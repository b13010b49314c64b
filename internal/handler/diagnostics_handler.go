package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studydeck/content-api/internal/service"
	"github.com/studydeck/content-api/pkg/response"
)

// DiagnosticsHandler exposes the troubleshooting probe sequence.
type DiagnosticsHandler struct {
	service *service.DiagnosticsService
}

// NewDiagnosticsHandler constructs the handler.
func NewDiagnosticsHandler(service *service.DiagnosticsService) *DiagnosticsHandler {
	return &DiagnosticsHandler{service: service}
}

// Run godoc
// @Summary Run diagnostics
// @Description Probe the session, database, blob store, configuration, and privileged delete path
// @Tags Diagnostics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /diagnostics [post]
func (h *DiagnosticsHandler) Run(c *gin.Context) {
	report := h.service.Run(c.Request.Context(), claimsFromContext(c))
	response.JSON(c, http.StatusOK, report, nil)
}
