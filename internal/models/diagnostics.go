package models

import "time"

// DiagnosticCheck is the outcome of a single troubleshooting probe stage.
type DiagnosticCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// DiagnosticsReport aggregates all probe stages into one summary.
type DiagnosticsReport struct {
	Healthy     bool              `json:"healthy"`
	Checks      []DiagnosticCheck `json:"checks"`
	Metrics     *SystemMetrics    `json:"metrics,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot of server-side counters exposed
// alongside diagnostics output.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"avg_db_query_duration_ms"`
	ListRetries              uint64    `json:"list_retries"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
