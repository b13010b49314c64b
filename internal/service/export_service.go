package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/studydeck/content-api/internal/models"
	appErrors "github.com/studydeck/content-api/pkg/errors"
	"github.com/studydeck/content-api/pkg/export"
)

// ExportFormat enumerates supported render targets.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult bundles the rendered document with its transport metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type exportSlideLister interface {
	List(ctx context.Context, filter models.SlideFilter) ([]models.Slide, error)
}

type exportQuizLister interface {
	List(ctx context.Context) ([]models.Quiz, error)
}

// ExportService renders library and quiz inventories as CSV or PDF.
type ExportService struct {
	slides  exportSlideLister
	quizzes exportQuizLister
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
	maxRows int
}

// NewExportService constructs the service.
func NewExportService(slides exportSlideLister, quizzes exportQuizLister, logger *zap.Logger, maxRows int) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = 200
	}
	return &ExportService{
		slides:  slides,
		quizzes: quizzes,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		maxRows: maxRows,
	}
}

// SlideInventory exports the slide library, honoring the list filter.
func (s *ExportService) SlideInventory(ctx context.Context, actor *models.JWTClaims, filter models.SlideFilter, format ExportFormat) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleInstructor {
		return nil, appErrors.ErrForbidden
	}

	filter.Limit = s.maxRows
	filter.Offset = 0
	slides, err := s.slides.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slides for export")
	}

	dataset := export.Dataset{
		Headers: []string{"Title", "Course", "Type", "MIME", "Size (bytes)", "Uploaded"},
		Rows:    make([]map[string]string, 0, len(slides)),
	}
	for _, slide := range slides {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Title":        slide.Title,
			"Course":       slide.CourseID,
			"Type":         string(slide.Kind()),
			"MIME":         slide.MimeType,
			"Size (bytes)": strconv.FormatInt(slide.SizeBytes, 10),
			"Uploaded":     slide.CreatedAt.Format("2006-01-02"),
		})
	}
	return s.render(dataset, "Slide Library", "slides", format)
}

// QuizCatalog exports the quiz catalog.
func (s *ExportService) QuizCatalog(ctx context.Context, actor *models.JWTClaims, format ExportFormat) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleInstructor {
		return nil, appErrors.ErrForbidden
	}

	quizzes, err := s.quizzes.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quizzes for export")
	}

	dataset := export.Dataset{
		Headers: []string{"Title", "Questions", "Time limit (s)", "Created"},
		Rows:    make([]map[string]string, 0, len(quizzes)),
	}
	for _, quiz := range quizzes {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Title":          quiz.Title,
			"Questions":      strconv.Itoa(quiz.QuestionCount),
			"Time limit (s)": strconv.Itoa(quiz.TimeLimitSeconds),
			"Created":        quiz.CreatedAt.Format("2006-01-02"),
		})
	}
	return s.render(dataset, "Quiz Catalog", "quizzes", format)
}

func (s *ExportService) render(dataset export.Dataset, title, stem string, format ExportFormat) (*ExportResult, error) {
	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("%s_%s.csv", stem, stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("%s_%s.pdf", stem, stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}
}
