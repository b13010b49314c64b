package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/studydeck/content-api/internal/dto"
	"github.com/studydeck/content-api/internal/models"
	appErrors "github.com/studydeck/content-api/pkg/errors"
)

const quizCatalogCacheKey = "quizzes:catalog"

type quizStore interface {
	List(ctx context.Context) ([]models.Quiz, error)
	GetByID(ctx context.Context, id string) (*models.Quiz, error)
}

// QuizService serves the read-only quiz catalog through a cache.
type QuizService struct {
	repo   quizStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewQuizService constructs the service.
func NewQuizService(repo quizStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &QuizService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// List returns the quiz catalog. refresh bypasses the cache and repopulates
// it from the store.
func (s *QuizService) List(ctx context.Context, actor *models.JWTClaims, refresh bool) (*dto.QuizListResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	if !refresh && s.cache != nil {
		var cached []models.Quiz
		if hit, _ := s.cache.Get(ctx, quizCatalogCacheKey, &cached); hit {
			return &dto.QuizListResponse{Quizzes: cached, Cached: true}, nil
		}
	}

	quizzes, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quizzes")
	}
	if quizzes == nil {
		quizzes = []models.Quiz{}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, quizCatalogCacheKey, quizzes, s.ttl); err != nil {
			s.logger.Warn("quiz catalog cache write failed", zap.Error(err))
		}
	}
	return &dto.QuizListResponse{Quizzes: quizzes, Cached: false}, nil
}

// Get returns one quiz by identifier.
func (s *QuizService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Quiz, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	quiz, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	return quiz, nil
}
