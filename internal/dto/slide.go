package dto

import "github.com/studydeck/content-api/internal/models"

// CreateSlideRequest contains metadata submitted alongside a file upload.
type CreateSlideRequest struct {
	Title       string  `form:"title" json:"title"`
	Description *string `form:"description" json:"description"`
	CourseID    string  `form:"courseId" json:"courseId"`
}

// SlideListQuery captures the library filter state from query parameters.
type SlideListQuery struct {
	Search   string
	CourseID string
	Type     models.TypeFilter
	Sort     models.SortOrder
	Page     int
	PageSize int
}

// SlideResponse enriches a slide record with its derived kind.
type SlideResponse struct {
	models.Slide
	Kind models.SlideKind `json:"kind"`
}

// NewSlideResponse wraps a slide with its classification.
func NewSlideResponse(s models.Slide) SlideResponse {
	return SlideResponse{Slide: s, Kind: s.Kind()}
}

// SlideListResponse is the payload of a library listing. Pagination is
// carried out of band in the response envelope, not in the data block.
type SlideListResponse struct {
	Slides     []SlideResponse    `json:"slides"`
	Courses    []string           `json:"courses,omitempty"`
	Pagination *models.Pagination `json:"-"`
}

// DeleteSlideResponse reports the outcome of a delete: the metadata record is
// gone, but the stored file may have survived the removal attempts.
type DeleteSlideResponse struct {
	ID          string `json:"id"`
	FileRemoved bool   `json:"fileRemoved"`
}
