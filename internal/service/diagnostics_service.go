package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/studydeck/content-api/internal/models"
)

// diagnosticsSentinelID is a null UUID that no slide row can carry. The
// privileged-delete probe runs the definer-rights function against it to
// verify the function exists and is executable without touching data.
const diagnosticsSentinelID = "00000000-0000-0000-0000-000000000000"

const maxRecentFailures = 20

type dbProber interface {
	Probe(ctx context.Context) error
	List(ctx context.Context, filter models.SlideFilter) ([]models.Slide, error)
	PrivilegedDelete(ctx context.Context, id string) error
}

type blobProber interface {
	Probe(ctx context.Context) error
}

type failureNote struct {
	Stage string
	Error string
	At    time.Time
}

// DiagnosticsService runs the troubleshooting probe sequence. Every stage
// captures its own failure as a check result; Run never returns an error and
// never panics, since diagnostics must stay usable when everything else is
// broken.
type DiagnosticsService struct {
	db           dbProber
	blobs        blobProber
	metrics      *MetricsService
	missing      func() []string
	probeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	recent  []failureNote
	probing atomic.Bool
}

// NewDiagnosticsService constructs the service. The missing callback reports
// required configuration values that are absent. A positive probeTimeout
// enables a background probe run whenever a failure is noted; zero disables
// the automatic run.
func NewDiagnosticsService(db dbProber, blobs blobProber, metrics *MetricsService, missing func() []string, probeTimeout time.Duration, logger *zap.Logger) *DiagnosticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosticsService{db: db, blobs: blobs, metrics: metrics, missing: missing, probeTimeout: probeTimeout, logger: logger}
}

// NoteFailure records a failure observed elsewhere in the API so the next
// diagnostics run can surface it, and kicks off a background probe run.
func (s *DiagnosticsService) NoteFailure(stage string, err error) {
	if err == nil {
		return
	}
	s.logger.Warn("failure noted for diagnostics",
		zap.String("stage", stage),
		zap.Error(err))
	s.mu.Lock()
	s.recent = append(s.recent, failureNote{Stage: stage, Error: err.Error(), At: time.Now().UTC()})
	if len(s.recent) > maxRecentFailures {
		s.recent = s.recent[len(s.recent)-maxRecentFailures:]
	}
	s.mu.Unlock()

	s.scheduleRun()
}

// scheduleRun starts at most one background probe run at a time. The report
// is logged; no caller waits on it.
func (s *DiagnosticsService) scheduleRun() {
	if s.probeTimeout <= 0 {
		return
	}
	if !s.probing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.probing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
		defer cancel()
		report := s.run(ctx, nil, false)
		failed := make([]string, 0, len(report.Checks))
		for _, check := range report.Checks {
			if !check.OK {
				failed = append(failed, check.Name)
			}
		}
		s.logger.Info("background diagnostics run completed",
			zap.Bool("healthy", report.Healthy),
			zap.Strings("failed_checks", failed))
	}()
}

// Run executes the probe stages in order: session, database connectivity,
// blob store, configuration, a one-row read, and the privileged delete
// function. Each stage failure becomes an unhealthy check instead of an
// error.
func (s *DiagnosticsService) Run(ctx context.Context, actor *models.JWTClaims) models.DiagnosticsReport {
	return s.run(ctx, actor, true)
}

func (s *DiagnosticsService) run(ctx context.Context, actor *models.JWTClaims, withSession bool) models.DiagnosticsReport {
	report := models.DiagnosticsReport{GeneratedAt: time.Now().UTC()}

	if withSession {
		report.Checks = append(report.Checks, s.runCheck("session", func(context.Context) error {
			if actor == nil {
				return fmt.Errorf("no authenticated session")
			}
			return nil
		}, ctx))
	}

	report.Checks = append(report.Checks, s.runCheck("database", func(ctx context.Context) error {
		if s.db == nil {
			return fmt.Errorf("database not configured")
		}
		return s.db.Probe(ctx)
	}, ctx))

	report.Checks = append(report.Checks, s.runCheck("blob_store", func(ctx context.Context) error {
		if s.blobs == nil {
			return fmt.Errorf("blob store not configured")
		}
		return s.blobs.Probe(ctx)
	}, ctx))

	report.Checks = append(report.Checks, s.runCheck("configuration", func(context.Context) error {
		if s.missing == nil {
			return nil
		}
		if keys := s.missing(); len(keys) > 0 {
			return fmt.Errorf("missing configuration: %s", strings.Join(keys, ", "))
		}
		return nil
	}, ctx))

	report.Checks = append(report.Checks, s.runCheck("read_probe", func(ctx context.Context) error {
		if s.db == nil {
			return fmt.Errorf("database not configured")
		}
		_, err := s.db.List(ctx, models.SlideFilter{Limit: 1})
		return err
	}, ctx))

	report.Checks = append(report.Checks, s.runCheck("privileged_delete", func(ctx context.Context) error {
		if s.db == nil {
			return fmt.Errorf("database not configured")
		}
		return s.db.PrivilegedDelete(ctx, diagnosticsSentinelID)
	}, ctx))

	report.Checks = append(report.Checks, s.recentFailuresCheck())

	report.Healthy = true
	for _, check := range report.Checks {
		if !check.OK {
			report.Healthy = false
			break
		}
	}
	if s.metrics != nil {
		snapshot := s.metrics.Snapshot()
		report.Metrics = &snapshot
	}
	return report
}

func (s *DiagnosticsService) runCheck(name string, fn func(context.Context) error, ctx context.Context) (check models.DiagnosticCheck) {
	check.Name = name
	defer func() {
		if r := recover(); r != nil {
			check.OK = false
			check.Detail = fmt.Sprintf("probe panicked: %v", r)
			s.logger.Error("diagnostics probe panicked",
				zap.String("check", name),
				zap.Any("panic", r))
		}
	}()
	if err := fn(ctx); err != nil {
		check.OK = false
		check.Detail = err.Error()
		return check
	}
	check.OK = true
	return check
}

func (s *DiagnosticsService) recentFailuresCheck() models.DiagnosticCheck {
	s.mu.Lock()
	notes := make([]failureNote, len(s.recent))
	copy(notes, s.recent)
	s.mu.Unlock()

	if len(notes) == 0 {
		return models.DiagnosticCheck{Name: "recent_failures", OK: true}
	}
	last := notes[len(notes)-1]
	return models.DiagnosticCheck{
		Name:   "recent_failures",
		OK:     false,
		Detail: fmt.Sprintf("%d recent failures, last at %s in %s: %s", len(notes), last.At.Format(time.RFC3339), last.Stage, last.Error),
	}
}
