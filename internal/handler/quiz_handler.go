package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studydeck/content-api/internal/dto"
	"github.com/studydeck/content-api/internal/middleware"
	"github.com/studydeck/content-api/internal/models"
	"github.com/studydeck/content-api/pkg/response"
)

type quizService interface {
	List(ctx context.Context, actor *models.JWTClaims, refresh bool) (*dto.QuizListResponse, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Quiz, error)
}

// QuizHandler serves the quiz catalog endpoints.
type QuizHandler struct {
	service quizService
}

// NewQuizHandler constructs the handler.
func NewQuizHandler(service quizService) *QuizHandler {
	return &QuizHandler{service: service}
}

// List godoc
// @Summary List quizzes
// @Description List the quiz catalog; refresh=true bypasses the cache
// @Tags Quizzes
// @Produce json
// @Param refresh query bool false "Bypass the catalog cache"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /quizzes [get]
func (h *QuizHandler) List(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	res, err := h.service.List(c.Request.Context(), claimsFromContext(c), refresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, res.Cached)
	response.JSON(c, http.StatusOK, res, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get quiz metadata
// @Tags Quizzes
// @Produce json
// @Param id path string true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /quizzes/{id} [get]
func (h *QuizHandler) Get(c *gin.Context) {
	quiz, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quiz, nil)
}
