package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/studydeck/content-api/internal/dto"
	"github.com/studydeck/content-api/internal/models"
	"github.com/studydeck/content-api/internal/repository"
	appErrors "github.com/studydeck/content-api/pkg/errors"
	"github.com/studydeck/content-api/pkg/jobs"
)

const facetCacheKey = "slides:courses"

type slideStore interface {
	Create(ctx context.Context, slide *models.Slide) error
	GetByID(ctx context.Context, id string) (*models.Slide, error)
	List(ctx context.Context, filter models.SlideFilter) ([]models.Slide, error)
	Count(ctx context.Context, filter models.SlideFilter) (int, error)
	DistinctCourses(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	PrivilegedDelete(ctx context.Context, id string) error
	Probe(ctx context.Context) error
}

type blobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, path string) error
	PublicURL(path string) string
}

type janitorEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// diagnosticsTrigger receives failure notifications so the troubleshooting
// probes can run out of band.
type diagnosticsTrigger interface {
	NoteFailure(stage string, err error)
}

// SlideUpload carries the upload stream and its metadata.
type SlideUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// RetryNotice describes one scheduled retry of a transient list failure.
type RetryNotice struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// LibraryServiceConfig holds validation and retry parameters.
type LibraryServiceConfig struct {
	MaxFileSize        int64
	AllowedMIMEs       []string
	ListRetries        int
	RetryBaseDelay     time.Duration
	BlobDeleteAttempts int
	FacetCacheTTL      time.Duration
}

// LibraryService manages the slide library: listing with transient-failure
// retries, uploads, and the two-phase delete of file plus metadata.
type LibraryService struct {
	repo        slideStore
	blobs       blobStore
	cache       *CacheService
	janitor     janitorEnqueuer
	audit       auditLogger
	diagnostics diagnosticsTrigger
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         LibraryServiceConfig
	mimeSet     map[string]struct{}

	onRetry func(RetryNotice)

	// generation orders facet refreshes so a slow fetch started by an
	// earlier list call can never overwrite the result of a later one.
	generation uint64
	facetMu    sync.Mutex
	facetGen   uint64
	courses    []string
}

// NewLibraryService constructs the service with defaults.
func NewLibraryService(repo slideStore, blobs blobStore, cache *CacheService, janitor janitorEnqueuer, audit auditLogger, diagnostics diagnosticsTrigger, metrics *MetricsService, logger *zap.Logger, cfg LibraryServiceConfig) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{
			"application/pdf",
			"image/jpeg",
			"image/png",
			"image/gif",
		}
	}
	if cfg.ListRetries < 0 {
		cfg.ListRetries = 0
	} else if cfg.ListRetries == 0 {
		cfg.ListRetries = 2
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.BlobDeleteAttempts <= 0 {
		cfg.BlobDeleteAttempts = 3
	}
	if cfg.FacetCacheTTL <= 0 {
		cfg.FacetCacheTTL = 5 * time.Minute
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &LibraryService{
		repo:        repo,
		blobs:       blobs,
		cache:       cache,
		janitor:     janitor,
		audit:       audit,
		diagnostics: diagnostics,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		mimeSet:     mimeSet,
	}
}

// OnRetry registers a hook invoked whenever a transient list failure
// schedules another attempt.
func (s *LibraryService) OnRetry(fn func(RetryNotice)) {
	s.onRetry = fn
}

// linearBackOff waits base, 2*base, 3*base between attempts and stops after
// maxRetries waits.
type linearBackOff struct {
	base       time.Duration
	maxRetries int
	attempt    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.maxRetries {
		return backoff.Stop
	}
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// List fetches slides for the library view. Transient store failures are
// retried up to the configured count with linearly growing delays; any other
// failure surfaces immediately. The distinct course facet is refreshed after
// a successful fetch and its failures never affect the listing.
func (s *LibraryService) List(ctx context.Context, actor *models.JWTClaims, query dto.SlideListQuery) (*dto.SlideListResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	if err := s.repo.Probe(ctx); err != nil {
		s.noteFailure("list.probe", err)
		return nil, appErrors.Clone(appErrors.ErrConnectionUnavailable, "content store is unreachable")
	}

	gen := atomic.AddUint64(&s.generation, 1)
	filter := slideFilterFromQuery(query)

	var slides []models.Slide
	operation := func() error {
		items, err := s.repo.List(ctx, filter)
		if err != nil {
			if appErrors.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		slides = items
		return nil
	}
	retries := 0
	notify := func(err error, delay time.Duration) {
		retries++
		s.recordRetry(retries, err, delay)
	}

	bo := backoff.WithContext(&linearBackOff{base: s.cfg.RetryBaseDelay, maxRetries: s.cfg.ListRetries}, ctx)
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		s.noteFailure("list.fetch", err)
		if appErrors.IsTransient(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, "slide listing kept failing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slides")
	}

	resp := &dto.SlideListResponse{Slides: make([]dto.SlideResponse, 0, len(slides))}
	for _, slide := range slides {
		resp.Slides = append(resp.Slides, dto.NewSlideResponse(slide))
	}
	resp.Courses = s.refreshFacets(ctx, gen)

	// Like the facet fetch, a failed count never costs the listing.
	if total, err := s.repo.Count(ctx, filter); err != nil {
		s.logger.Debug("slide count failed", zap.Error(err))
	} else {
		page := query.Page
		if page < 1 {
			page = 1
		}
		pageSize := query.PageSize
		if pageSize <= 0 {
			pageSize = 50
		}
		resp.Pagination = &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	}
	return resp, nil
}

func (s *LibraryService) recordRetry(attempt int, err error, delay time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordListRetry()
	}
	s.logger.Warn("slide listing failed, retrying",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
	if s.onRetry != nil {
		s.onRetry(RetryNotice{Attempt: attempt, Delay: delay, Err: err})
	}
}

// refreshFacets loads the distinct course list, preferring the cache. A
// failure is swallowed: the listing ships without the facet. The generation
// check drops results from calls that have since been superseded.
func (s *LibraryService) refreshFacets(ctx context.Context, gen uint64) []string {
	var cached []string
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, facetCacheKey, &cached); hit {
			s.storeFacets(gen, cached)
			return s.currentFacets()
		}
	}

	courses, err := s.repo.DistinctCourses(ctx)
	if err != nil {
		s.logger.Debug("course facet fetch failed", zap.Error(err))
		return s.currentFacets()
	}
	if s.storeFacets(gen, courses) && s.cache != nil {
		_ = s.cache.Set(ctx, facetCacheKey, courses, s.cfg.FacetCacheTTL)
	}
	return s.currentFacets()
}

func (s *LibraryService) storeFacets(gen uint64, courses []string) bool {
	s.facetMu.Lock()
	defer s.facetMu.Unlock()
	if gen < s.facetGen {
		return false
	}
	s.facetGen = gen
	s.courses = courses
	return true
}

func (s *LibraryService) currentFacets() []string {
	s.facetMu.Lock()
	defer s.facetMu.Unlock()
	return s.courses
}

// Courses returns the distinct course facet directly.
func (s *LibraryService) Courses(ctx context.Context, actor *models.JWTClaims) ([]string, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	gen := atomic.AddUint64(&s.generation, 1)
	var cached []string
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, facetCacheKey, &cached); hit {
			s.storeFacets(gen, cached)
			return cached, nil
		}
	}
	courses, err := s.repo.DistinctCourses(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course list")
	}
	if s.storeFacets(gen, courses) && s.cache != nil {
		_ = s.cache.Set(ctx, facetCacheKey, courses, s.cfg.FacetCacheTTL)
	}
	return courses, nil
}

// Get returns one slide by identifier.
func (s *LibraryService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.SlideResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	slide, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slide")
	}
	resp := dto.NewSlideResponse(*slide)
	return &resp, nil
}

// Upload validates the request entirely before touching the network, stores
// the file, then records metadata with a single insert. A metadata failure
// leaves the file for the janitor instead of blocking the response on a
// rollback.
func (s *LibraryService) Upload(ctx context.Context, actor *models.JWTClaims, meta dto.CreateSlideRequest, upload SlideUpload) (*dto.SlideResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleInstructor {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validateUpload(meta, upload); err != nil {
		return nil, err
	}

	path := s.generatePath(meta.CourseID, upload.Filename)
	if err := s.blobs.Upload(ctx, path, upload.Content, upload.Size, upload.MimeType); err != nil {
		s.noteFailure("upload.blob", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store slide file")
	}

	slide := &models.Slide{
		Title:       strings.TrimSpace(meta.Title),
		Description: meta.Description,
		CourseID:    strings.TrimSpace(meta.CourseID),
		FileURL:     s.blobs.PublicURL(path),
		FilePath:    path,
		MimeType:    strings.ToLower(upload.MimeType),
		SizeBytes:   upload.Size,
		UploadedBy:  actor.UserID,
	}
	if err := s.repo.Create(ctx, slide); err != nil {
		s.enqueueOrphan(path, "insert failed after upload")
		s.noteFailure("upload.metadata", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record slide metadata")
	}

	s.invalidateListings(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSlideUpload,
		Resource:   "slide",
		ResourceID: &slide.ID,
		NewValues:  []byte(fmt.Sprintf(`{"title":%q,"courseId":%q}`, slide.Title, slide.CourseID)),
	})

	resp := dto.NewSlideResponse(*slide)
	return &resp, nil
}

// Delete removes the stored file and then the metadata row. File removal is
// attempted a bounded number of times and never blocks the metadata delete;
// a surviving file goes to the janitor queue. When the plain delete is
// rejected for lack of privilege the definer-rights path is tried before
// giving up.
func (s *LibraryService) Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeleteSlideResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleInstructor {
		return nil, appErrors.ErrForbidden
	}

	if err := s.repo.Probe(ctx); err != nil {
		s.noteFailure("delete.probe", err)
		return nil, appErrors.Clone(appErrors.ErrConnectionUnavailable, "content store is unreachable")
	}

	slide, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		s.noteFailure("delete.lookup", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slide")
	}

	fileRemoved := s.removeBlob(ctx, slide.FilePath)

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
		if repository.IsPermissionDenied(err) {
			s.logger.Warn("plain delete rejected, trying privileged path",
				zap.String("slide_id", id))
			if perr := s.repo.PrivilegedDelete(ctx, id); perr != nil {
				s.noteFailure("delete.privileged", perr)
				return nil, appErrors.Wrap(perr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slide metadata")
			}
		} else {
			s.noteFailure("delete.metadata", err)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slide metadata")
		}
	}

	s.invalidateListings(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSlideDelete,
		Resource:   "slide",
		ResourceID: &id,
		OldValues:  []byte(fmt.Sprintf(`{"title":%q,"filePath":%q}`, slide.Title, slide.FilePath)),
	})

	return &dto.DeleteSlideResponse{ID: id, FileRemoved: fileRemoved}, nil
}

// removeBlob tries file removal up to the configured attempt count with
// linear delays. Exhaustion is not fatal: the path is queued for the janitor
// and the caller proceeds to the metadata delete.
func (s *LibraryService) removeBlob(ctx context.Context, path string) bool {
	if path == "" {
		return true
	}
	var lastErr error
	for attempt := 0; attempt < s.cfg.BlobDeleteAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.enqueueOrphan(path, "delete interrupted")
				return false
			case <-time.After(s.cfg.RetryBaseDelay * time.Duration(attempt)):
			}
		}
		if lastErr = s.blobs.Remove(ctx, path); lastErr == nil {
			return true
		}
		s.logger.Warn("slide file removal failed",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	s.enqueueOrphan(path, "removal attempts exhausted")
	return false
}

func (s *LibraryService) enqueueOrphan(path, reason string) {
	if s.janitor == nil {
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("orphan-%s", randomSuffix()),
		Type:    "orphan_blob",
		Payload: path,
	}
	if err := s.janitor.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue orphan blob",
			zap.String("path", path),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	s.logger.Info("orphan blob queued for removal",
		zap.String("path", path),
		zap.String("reason", reason))
}

func (s *LibraryService) validateUpload(meta dto.CreateSlideRequest, upload SlideUpload) error {
	if strings.TrimSpace(meta.Title) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if strings.TrimSpace(meta.CourseID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "courseId is required")
	}
	if upload.Content == nil || upload.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	if _, allowed := s.mimeSet[strings.ToLower(upload.MimeType)]; !allowed {
		return appErrors.Clone(appErrors.ErrValidation, "file type not allowed, expected pdf or image")
	}
	return nil
}

func (s *LibraryService) generatePath(courseID, filename string) string {
	course := sanitizeSegment(courseID)
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("slides/%s/%d_%s%s", course, time.Now().UTC().Unix(), randomSuffix(), ext)
}

func (s *LibraryService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "slides:*")
}

func (s *LibraryService) emitAudit(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.Error(err))
	}
}

func (s *LibraryService) noteFailure(stage string, err error) {
	if s.diagnostics == nil {
		return
	}
	s.diagnostics.NoteFailure(stage, err)
}

func slideFilterFromQuery(query dto.SlideListQuery) models.SlideFilter {
	limit := query.PageSize
	if limit <= 0 {
		limit = 50
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	return models.SlideFilter{
		Search:   query.Search,
		CourseID: query.CourseID,
		Type:     query.Type,
		Sort:     query.Sort,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
}

func sanitizeSegment(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return "misc"
	}
	return cleaned
}

func randomSuffix() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
