package dto

import "github.com/studydeck/content-api/internal/models"

// QuizListResponse is the payload of the quiz catalog listing.
type QuizListResponse struct {
	Quizzes []models.Quiz `json:"quizzes"`
	Cached  bool          `json:"cached"`
}
