package models

import (
	"strings"
	"time"
)

// SlideKind classifies an uploaded file by its MIME type.
type SlideKind string

const (
	SlideKindImage SlideKind = "image"
	SlideKindPDF   SlideKind = "pdf"
	SlideKindOther SlideKind = "other"
)

// SortOrder enumerates the supported list orderings.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortOldest    SortOrder = "oldest"
	SortTitleAsc  SortOrder = "title_asc"
	SortTitleDesc SortOrder = "title_desc"
)

// TypeFilter narrows listings to one slide kind; empty or "all" matches everything.
type TypeFilter string

const (
	TypeFilterAll   TypeFilter = "all"
	TypeFilterImage TypeFilter = "image"
	TypeFilterPDF   TypeFilter = "pdf"
	TypeFilterOther TypeFilter = "other"
)

// Slide represents one uploaded slide deck or image in the content library.
type Slide struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	CourseID    string    `db:"course_id" json:"courseId"`
	FileURL     string    `db:"file_url" json:"fileUrl"`
	FilePath    string    `db:"file_path" json:"filePath"`
	MimeType    string    `db:"mime_type" json:"mimeType"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	UploadedBy  string    `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Kind classifies the slide as image, pdf, or other based on its MIME type.
func (s Slide) Kind() SlideKind {
	mime := strings.ToLower(s.MimeType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return SlideKindImage
	case mime == "application/pdf":
		return SlideKindPDF
	default:
		return SlideKindOther
	}
}

// SlideFilter captures the library filter state translated into a query:
// search text, course, type predicate, sort order, and pagination window.
type SlideFilter struct {
	Search   string
	CourseID string
	Type     TypeFilter
	Sort     SortOrder
	Limit    int
	Offset   int
}

// ParseSortOrder maps a raw query value onto a SortOrder, defaulting to newest.
func ParseSortOrder(raw string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortOldest:
		return SortOldest
	case SortTitleAsc:
		return SortTitleAsc
	case SortTitleDesc:
		return SortTitleDesc
	default:
		return SortNewest
	}
}

// ParseTypeFilter maps a raw query value onto a TypeFilter, defaulting to all.
func ParseTypeFilter(raw string) TypeFilter {
	switch TypeFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeFilterImage:
		return TypeFilterImage
	case TypeFilterPDF:
		return TypeFilterPDF
	case TypeFilterOther:
		return TypeFilterOther
	default:
		return TypeFilterAll
	}
}
