package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studydeck/content-api/internal/models"
	"github.com/studydeck/content-api/internal/service"
	"github.com/studydeck/content-api/pkg/response"
)

type exportService interface {
	SlideInventory(ctx context.Context, actor *models.JWTClaims, filter models.SlideFilter, format service.ExportFormat) (*service.ExportResult, error)
	QuizCatalog(ctx context.Context, actor *models.JWTClaims, format service.ExportFormat) (*service.ExportResult, error)
}

// ExportHandler streams rendered inventory documents.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Slides godoc
// @Summary Export slide inventory
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "Export format (csv or pdf)"
// @Param courseId query string false "Course filter"
// @Param type query string false "Type filter"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/slides [get]
func (h *ExportHandler) Slides(c *gin.Context) {
	filter := models.SlideFilter{
		CourseID: strings.TrimSpace(c.Query("courseId")),
		Type:     models.ParseTypeFilter(c.Query("type")),
		Sort:     models.ParseSortOrder(c.Query("sort")),
	}
	res, err := h.service.SlideInventory(c.Request.Context(), claimsFromContext(c), filter, service.ExportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, res)
}

// Quizzes godoc
// @Summary Export quiz catalog
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "Export format (csv or pdf)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/quizzes [get]
func (h *ExportHandler) Quizzes(c *gin.Context) {
	res, err := h.service.QuizCatalog(c.Request.Context(), claimsFromContext(c), service.ExportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, res)
}

func writeExport(c *gin.Context, res *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	c.Data(http.StatusOK, res.ContentType, res.Data)
}
