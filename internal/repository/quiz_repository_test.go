package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func sqlxWrap(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "sqlmock")
}

func TestQuizRepositoryList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	observer := &queryObserverStub{}
	repo := NewQuizRepository(sqlxWrap(db), observer)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "time_limit_seconds", "question_count", "created_at"}).
		AddRow("quiz-2", "Cell Division", nil, 600, 12, time.Now()).
		AddRow("quiz-1", "Photosynthesis", nil, 300, 8, time.Now().Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, time_limit_seconds, question_count, created_at")).
		WillReturnRows(rows)

	quizzes, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, quizzes, 2)
	require.Equal(t, "quiz-2", quizzes[0].ID)
	require.Equal(t, []string{"quizzes.list"}, observer.labels)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuizRepositoryGetByIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewQuizRepository(sqlxWrap(db), nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quizzes WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}
