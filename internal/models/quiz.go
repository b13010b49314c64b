package models

import "time"

// Quiz represents one quiz in the read-only catalog.
type Quiz struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	Description      *string   `db:"description" json:"description,omitempty"`
	TimeLimitSeconds int       `db:"time_limit_seconds" json:"timeLimitSeconds"`
	QuestionCount    int       `db:"question_count" json:"questionCount"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}
