package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studydeck/content-api/internal/dto"
	"github.com/studydeck/content-api/internal/models"
	"github.com/studydeck/content-api/internal/service"
	appErrors "github.com/studydeck/content-api/pkg/errors"
	"github.com/studydeck/content-api/pkg/response"
)

type libraryService interface {
	List(ctx context.Context, actor *models.JWTClaims, query dto.SlideListQuery) (*dto.SlideListResponse, error)
	Courses(ctx context.Context, actor *models.JWTClaims) ([]string, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.SlideResponse, error)
	Upload(ctx context.Context, actor *models.JWTClaims, meta dto.CreateSlideRequest, upload service.SlideUpload) (*dto.SlideResponse, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeleteSlideResponse, error)
}

// uploadOverheadBytes leaves room for the multipart framing and the
// metadata fields around the file part.
const uploadOverheadBytes = 1 << 20

// SlideHandler manages the slide library HTTP endpoints.
type SlideHandler struct {
	service        libraryService
	maxUploadBytes int64
}

// NewSlideHandler constructs the handler. maxUploadBytes caps the upload
// request body; zero disables the cap.
func NewSlideHandler(service libraryService, maxUploadBytes int64) *SlideHandler {
	return &SlideHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// List godoc
// @Summary List slides
// @Description List slides with search, course, type filter and sorting
// @Tags Slides
// @Produce json
// @Param search query string false "Title search"
// @Param courseId query string false "Course filter"
// @Param type query string false "Type filter (all, image, pdf, other)"
// @Param sort query string false "Sort order (newest, oldest, title_asc, title_desc)"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /slides [get]
func (h *SlideHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	query := dto.SlideListQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		CourseID: strings.TrimSpace(c.Query("courseId")),
		Type:     models.ParseTypeFilter(c.Query("type")),
		Sort:     models.ParseSortOrder(c.Query("sort")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 50),
	}

	res, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, res.Pagination)
}

// Courses godoc
// @Summary List course facets
// @Description Distinct course identifiers across the slide library
// @Tags Slides
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /slides/courses [get]
func (h *SlideHandler) Courses(c *gin.Context) {
	courses, err := h.service.Courses(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"courses": courses}, nil)
}

// Get godoc
// @Summary Get slide metadata
// @Tags Slides
// @Produce json
// @Param id path string true "Slide ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slides/{id} [get]
func (h *SlideHandler) Get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Upload godoc
// @Summary Upload a slide
// @Description Upload a slide file with metadata
// @Tags Slides
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param courseId formData string true "Course identifier"
// @Param description formData string false "Description"
// @Param file formData file true "Slide file (pdf or image, max 10MB)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /slides [post]
func (h *SlideHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+uploadOverheadBytes)
	}

	var req dto.CreateSlideRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "request body too large"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid slide payload"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	upload := service.SlideUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  src,
	}
	res, err := h.service.Upload(c.Request.Context(), claimsFromContext(c), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, res, nil)
}

// Delete godoc
// @Summary Delete a slide
// @Description Remove the stored file and the metadata record
// @Tags Slides
// @Produce json
// @Param id path string true "Slide ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /slides/{id} [delete]
func (h *SlideHandler) Delete(c *gin.Context) {
	res, err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
