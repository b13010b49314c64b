package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/studydeck/content-api/internal/models"
)

// QuizRepository reads the quiz catalog. The catalog is maintained by a
// separate authoring pipeline, so no writes happen here.
type QuizRepository struct {
	db      *sqlx.DB
	metrics QueryObserver
}

// NewQuizRepository constructs the repository. metrics may be nil.
func NewQuizRepository(db *sqlx.DB, metrics QueryObserver) *QuizRepository {
	return &QuizRepository{db: db, metrics: metrics}
}

func (r *QuizRepository) observe(label string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

// List returns all quizzes, newest first.
func (r *QuizRepository) List(ctx context.Context) ([]models.Quiz, error) {
	const query = `SELECT id, title, description, time_limit_seconds, question_count, created_at
	FROM quizzes ORDER BY created_at DESC`
	defer r.observe("quizzes.list", time.Now())
	var quizzes []models.Quiz
	if err := r.db.SelectContext(ctx, &quizzes, query); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// GetByID retrieves one quiz row.
func (r *QuizRepository) GetByID(ctx context.Context, id string) (*models.Quiz, error) {
	const query = `SELECT id, title, description, time_limit_seconds, question_count, created_at
	FROM quizzes WHERE id = $1`
	defer r.observe("quizzes.get", time.Now())
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get quiz %s: %w", id, err)
	}
	return &quiz, nil
}
