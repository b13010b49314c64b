package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/studydeck/content-api/internal/dto"
	"github.com/studydeck/content-api/internal/models"
	appErrors "github.com/studydeck/content-api/pkg/errors"
	"github.com/studydeck/content-api/pkg/jobs"
)

type slideStoreStub struct {
	listErrs   []error
	listCalls  int
	slides     []models.Slide
	courses    []string
	coursesErr error
	probeErr   error

	countErr error

	getSlide *models.Slide
	getErr   error

	created   []*models.Slide
	createErr error

	deleteErr     error
	deleted       []string
	privileged    []string
	privilegedErr error
}

func (s *slideStoreStub) Create(_ context.Context, slide *models.Slide) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, slide)
	return nil
}

func (s *slideStoreStub) GetByID(_ context.Context, _ string) (*models.Slide, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.getSlide, nil
}

func (s *slideStoreStub) List(_ context.Context, _ models.SlideFilter) ([]models.Slide, error) {
	call := s.listCalls
	s.listCalls++
	if call < len(s.listErrs) && s.listErrs[call] != nil {
		return nil, s.listErrs[call]
	}
	return s.slides, nil
}

func (s *slideStoreStub) Count(_ context.Context, _ models.SlideFilter) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return len(s.slides), nil
}

func (s *slideStoreStub) DistinctCourses(_ context.Context) ([]string, error) {
	if s.coursesErr != nil {
		return nil, s.coursesErr
	}
	return s.courses, nil
}

func (s *slideStoreStub) Delete(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *slideStoreStub) PrivilegedDelete(_ context.Context, id string) error {
	if s.privilegedErr != nil {
		return s.privilegedErr
	}
	s.privileged = append(s.privileged, id)
	return nil
}

func (s *slideStoreStub) Probe(_ context.Context) error { return s.probeErr }

type blobStoreStub struct {
	uploads      []string
	uploadedSize []int64
	uploadErr    error

	removed     []string
	removeFails int
	removeCalls int
}

func (b *blobStoreStub) Upload(_ context.Context, path string, _ io.Reader, size int64, _ string) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.uploads = append(b.uploads, path)
	b.uploadedSize = append(b.uploadedSize, size)
	return nil
}

func (b *blobStoreStub) Remove(_ context.Context, path string) error {
	b.removeCalls++
	if b.removeCalls <= b.removeFails {
		return errors.New("connection reset by peer")
	}
	b.removed = append(b.removed, path)
	return nil
}

func (b *blobStoreStub) PublicURL(path string) string { return "https://files.test/" + path }

type janitorStub struct {
	jobs []jobs.Job
}

func (j *janitorStub) Enqueue(job jobs.Job) error {
	j.jobs = append(j.jobs, job)
	return nil
}

type auditStub struct {
	entries []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type diagStub struct {
	stages []string
}

func (d *diagStub) NoteFailure(stage string, _ error) {
	d.stages = append(d.stages, stage)
}

func instructorActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleInstructor}
}

func newLibraryService(repo *slideStoreStub, blobs *blobStoreStub, janitor *janitorStub, audit *auditStub, diag *diagStub) *LibraryService {
	var janitorIface janitorEnqueuer
	if janitor != nil {
		janitorIface = janitor
	}
	var auditIface auditLogger
	if audit != nil {
		auditIface = audit
	}
	var diagIface diagnosticsTrigger
	if diag != nil {
		diagIface = diag
	}
	return NewLibraryService(repo, blobs, nil, janitorIface, auditIface, diagIface, nil, nil, LibraryServiceConfig{
		RetryBaseDelay: time.Millisecond,
	})
}

func TestLibraryListRetriesTransientFailures(t *testing.T) {
	transient := errors.New("dial tcp: connection refused")
	repo := &slideStoreStub{
		listErrs: []error{transient, transient},
		slides:   []models.Slide{{ID: "s1", Title: "Intro", MimeType: "application/pdf"}},
		courses:  []string{"bio-101", "chem-200"},
	}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	var notices []RetryNotice
	svc.OnRetry(func(n RetryNotice) { notices = append(notices, n) })

	resp, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{})
	require.NoError(t, err)
	require.Len(t, resp.Slides, 1)
	require.Equal(t, models.SlideKindPDF, resp.Slides[0].Kind)
	require.Equal(t, []string{"bio-101", "chem-200"}, resp.Courses)
	require.Equal(t, 3, repo.listCalls)
	require.Len(t, notices, 2)
	require.Equal(t, 1, notices[0].Attempt)
	require.Equal(t, 2, notices[1].Attempt)
	require.Greater(t, notices[1].Delay, notices[0].Delay)
}

func TestLibraryListExhaustsRetries(t *testing.T) {
	transient := errors.New("i/o timeout")
	repo := &slideStoreStub{listErrs: []error{transient, transient, transient, transient}}
	diag := &diagStub{}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, diag)

	var notices []RetryNotice
	svc.OnRetry(func(n RetryNotice) { notices = append(notices, n) })

	_, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNetwork.Code, appErr.Code)
	require.Equal(t, 3, repo.listCalls)
	require.Len(t, notices, 2)
	require.Contains(t, diag.stages, "list.fetch")
}

func TestLibraryListNonTransientFailsFast(t *testing.T) {
	repo := &slideStoreStub{listErrs: []error{errors.New(`relation "slides" does not exist`)}}
	diag := &diagStub{}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, diag)

	var notices []RetryNotice
	svc.OnRetry(func(n RetryNotice) { notices = append(notices, n) })

	_, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	require.Equal(t, 1, repo.listCalls)
	require.Empty(t, notices)
	require.Contains(t, diag.stages, "list.fetch")
}

func TestLibraryListUnauthenticated(t *testing.T) {
	repo := &slideStoreStub{}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	_, err := svc.List(context.Background(), nil, dto.SlideListQuery{})
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	require.Zero(t, repo.listCalls)
}

func TestLibraryListProbeFailure(t *testing.T) {
	repo := &slideStoreStub{probeErr: errors.New("connection refused")}
	diag := &diagStub{}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, diag)

	_, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConnectionUnavailable.Code, appErr.Code)
	require.Zero(t, repo.listCalls)
	require.Contains(t, diag.stages, "list.probe")
}

func TestLibraryListFacetFailureIsSwallowed(t *testing.T) {
	repo := &slideStoreStub{
		slides:     []models.Slide{{ID: "s1", Title: "Cells", MimeType: "image/png"}},
		coursesErr: errors.New("connection refused"),
	}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	resp, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{})
	require.NoError(t, err)
	require.Len(t, resp.Slides, 1)
	require.Empty(t, resp.Courses)
}

func TestLibraryListIncludesPagination(t *testing.T) {
	repo := &slideStoreStub{
		slides: []models.Slide{
			{ID: "s1", Title: "Cells", MimeType: "image/png"},
			{ID: "s2", Title: "Mitosis", MimeType: "application/pdf"},
		},
	}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	resp, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{Page: 2, PageSize: 25})
	require.NoError(t, err)
	require.NotNil(t, resp.Pagination)
	require.Equal(t, 2, resp.Pagination.Page)
	require.Equal(t, 25, resp.Pagination.PageSize)
	require.Equal(t, 2, resp.Pagination.TotalCount)
}

func TestLibraryListCountFailureIsSwallowed(t *testing.T) {
	repo := &slideStoreStub{
		slides:   []models.Slide{{ID: "s1", Title: "Cells", MimeType: "image/png"}},
		countErr: errors.New("connection refused"),
	}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	resp, err := svc.List(context.Background(), instructorActor(), dto.SlideListQuery{})
	require.NoError(t, err)
	require.Len(t, resp.Slides, 1)
	require.Nil(t, resp.Pagination)
}

func TestLibraryFacetGenerationGuard(t *testing.T) {
	svc := newLibraryService(&slideStoreStub{}, &blobStoreStub{}, nil, nil, &diagStub{})

	require.True(t, svc.storeFacets(2, []string{"newer"}))
	require.False(t, svc.storeFacets(1, []string{"stale"}))
	require.Equal(t, []string{"newer"}, svc.currentFacets())
}

func TestLibraryUploadRejectsBeforeNetwork(t *testing.T) {
	repo := &slideStoreStub{}
	blobs := &blobStoreStub{}
	svc := newLibraryService(repo, blobs, nil, nil, &diagStub{})
	actor := instructorActor()
	meta := dto.CreateSlideRequest{Title: "Mitosis", CourseID: "bio-101"}

	cases := []struct {
		name   string
		meta   dto.CreateSlideRequest
		upload SlideUpload
	}{
		{
			name:   "oversized file",
			meta:   meta,
			upload: SlideUpload{Filename: "deck.pdf", Size: 15 * 1024 * 1024, MimeType: "application/pdf", Content: strings.NewReader("x")},
		},
		{
			name:   "disallowed type",
			meta:   meta,
			upload: SlideUpload{Filename: "notes.docx", Size: 1024, MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Content: strings.NewReader("x")},
		},
		{
			name:   "missing title",
			meta:   dto.CreateSlideRequest{CourseID: "bio-101"},
			upload: SlideUpload{Filename: "deck.pdf", Size: 1024, MimeType: "application/pdf", Content: strings.NewReader("x")},
		},
		{
			name:   "missing course",
			meta:   dto.CreateSlideRequest{Title: "Mitosis"},
			upload: SlideUpload{Filename: "deck.pdf", Size: 1024, MimeType: "application/pdf", Content: strings.NewReader("x")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), actor, tc.meta, tc.upload)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
	require.Empty(t, blobs.uploads)
	require.Empty(t, repo.created)
}

func TestLibraryUploadStoresFileOnce(t *testing.T) {
	repo := &slideStoreStub{}
	blobs := &blobStoreStub{}
	audit := &auditStub{}
	svc := newLibraryService(repo, blobs, nil, audit, &diagStub{})

	content := bytes.Repeat([]byte("p"), 2*1024*1024)
	resp, err := svc.Upload(context.Background(), instructorActor(), dto.CreateSlideRequest{
		Title:    "Photosynthesis",
		CourseID: "Bio 101",
	}, SlideUpload{
		Filename: "photosynthesis.pdf",
		Size:     int64(len(content)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(content),
	})
	require.NoError(t, err)
	require.Len(t, blobs.uploads, 1)
	require.Len(t, repo.created, 1)
	require.Equal(t, models.SlideKindPDF, resp.Kind)
	require.Equal(t, "user-1", resp.UploadedBy)
	require.True(t, strings.HasPrefix(blobs.uploads[0], "slides/bio-101/"))
	require.True(t, strings.HasSuffix(blobs.uploads[0], ".pdf"))
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditActionSlideUpload, audit.entries[0].Action)
}

func TestLibraryUploadMetadataFailureQueuesOrphan(t *testing.T) {
	repo := &slideStoreStub{createErr: errors.New("insert failed")}
	blobs := &blobStoreStub{}
	janitor := &janitorStub{}
	svc := newLibraryService(repo, blobs, janitor, nil, &diagStub{})

	_, err := svc.Upload(context.Background(), instructorActor(), dto.CreateSlideRequest{
		Title:    "Osmosis",
		CourseID: "bio-101",
	}, SlideUpload{
		Filename: "osmosis.png",
		Size:     1024,
		MimeType: "image/png",
		Content:  strings.NewReader("img"),
	})
	require.Error(t, err)
	require.Len(t, blobs.uploads, 1)
	require.Len(t, janitor.jobs, 1)
	require.Equal(t, "orphan_blob", janitor.jobs[0].Type)
	require.Equal(t, blobs.uploads[0], janitor.jobs[0].Payload)
}

func TestLibraryUploadForbiddenForStudents(t *testing.T) {
	svc := newLibraryService(&slideStoreStub{}, &blobStoreStub{}, nil, nil, &diagStub{})
	_, err := svc.Upload(context.Background(), &models.JWTClaims{UserID: "u2", Role: models.RoleStudent}, dto.CreateSlideRequest{
		Title: "T", CourseID: "c",
	}, SlideUpload{Filename: "a.pdf", Size: 1, MimeType: "application/pdf", Content: strings.NewReader("x")})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestLibraryDeleteBlobFailureIsNonFatal(t *testing.T) {
	slide := &models.Slide{ID: "s1", Title: "Old deck", FilePath: "slides/bio-101/old.pdf"}
	repo := &slideStoreStub{getSlide: slide}
	blobs := &blobStoreStub{removeFails: 10}
	janitor := &janitorStub{}
	svc := newLibraryService(repo, blobs, janitor, nil, &diagStub{})

	resp, err := svc.Delete(context.Background(), instructorActor(), "s1")
	require.NoError(t, err)
	require.False(t, resp.FileRemoved)
	require.Equal(t, 3, blobs.removeCalls)
	require.Equal(t, []string{"s1"}, repo.deleted)
	require.Len(t, janitor.jobs, 1)
	require.Equal(t, slide.FilePath, janitor.jobs[0].Payload)
}

func TestLibraryDeleteRemovesFileAndRow(t *testing.T) {
	slide := &models.Slide{ID: "s1", Title: "Deck", FilePath: "slides/bio-101/deck.pdf"}
	repo := &slideStoreStub{getSlide: slide}
	blobs := &blobStoreStub{}
	audit := &auditStub{}
	svc := newLibraryService(repo, blobs, nil, audit, &diagStub{})

	resp, err := svc.Delete(context.Background(), instructorActor(), "s1")
	require.NoError(t, err)
	require.True(t, resp.FileRemoved)
	require.Equal(t, []string{slide.FilePath}, blobs.removed)
	require.Equal(t, []string{"s1"}, repo.deleted)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditActionSlideDelete, audit.entries[0].Action)
}

func TestLibraryDeletePrivilegedFallback(t *testing.T) {
	slide := &models.Slide{ID: "s1", FilePath: "slides/bio-101/deck.pdf"}
	repo := &slideStoreStub{
		getSlide:  slide,
		deleteErr: &pq.Error{Code: "42501"},
	}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	resp, err := svc.Delete(context.Background(), instructorActor(), "s1")
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, repo.privileged)
	require.True(t, resp.FileRemoved)
}

func TestLibraryDeleteMetadataFailure(t *testing.T) {
	slide := &models.Slide{ID: "s1", FilePath: "slides/bio-101/deck.pdf"}
	repo := &slideStoreStub{getSlide: slide, deleteErr: errors.New("deadlock detected")}
	diag := &diagStub{}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, diag)

	_, err := svc.Delete(context.Background(), instructorActor(), "s1")
	require.Error(t, err)
	require.Contains(t, diag.stages, "delete.metadata")
}

func TestLibraryDeleteNotFound(t *testing.T) {
	repo := &slideStoreStub{getErr: sql.ErrNoRows}
	svc := newLibraryService(repo, &blobStoreStub{}, nil, nil, &diagStub{})

	_, err := svc.Delete(context.Background(), instructorActor(), "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
