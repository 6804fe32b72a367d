// Package config holds the typed, environment-overridable configuration
// structs for every component, following the teacher's
// pkg/config/queue.go shape: one struct per concern, each with a
// DefaultXConfig constructor and plain field-by-field env overrides.
package config

import (
	"os"
	"strconv"
	"time"
)

// StoreConfig configures the embedded Store.
type StoreConfig struct {
	// Path is the filesystem location of the SQLite database file.
	Path string

	// MaxOpenConns bounds the reader connection pool.
	MaxOpenConns int

	// BusyTimeout is how long a connection waits on SQLITE_BUSY.
	BusyTimeout time.Duration
}

// DefaultStoreConfig returns the built-in Store defaults, overridden by
// CONTEXTVAULT_DB_PATH / CONTEXTVAULT_DB_MAX_OPEN_CONNS / CONTEXTVAULT_DB_BUSY_TIMEOUT
// if set.
func DefaultStoreConfig() *StoreConfig {
	cfg := &StoreConfig{
		Path:         "./contextvault.db",
		MaxOpenConns: 8,
		BusyTimeout:  5 * time.Second,
	}
	if v := os.Getenv("CONTEXTVAULT_DB_PATH"); v != "" {
		cfg.Path = v
	}
	if v, ok := envInt("CONTEXTVAULT_DB_MAX_OPEN_CONNS"); ok {
		cfg.MaxOpenConns = v
	}
	if v, ok := envDuration("CONTEXTVAULT_DB_BUSY_TIMEOUT"); ok {
		cfg.BusyTimeout = v
	}
	return cfg
}

// QueueConfig controls the Job Queue / Worker Pool's polling and lease
// behavior, mirroring the teacher's QueueConfig field-for-field where the
// concept carries over (worker count, poll interval/jitter), generalized
// from "sessions" to "jobs of a registered type".
type QueueConfig struct {
	// WorkerCount is the number of goroutines polling per registered job
	// type.
	WorkerCount int

	// PollInterval is the base sleep duration when claim finds no job.
	PollInterval time.Duration

	// PollIntervalJitter randomizes PollInterval by ± this amount, so many
	// workers polling the same type don't thunder in lockstep.
	PollIntervalJitter time.Duration

	// LeaseDuration is how long a claimed job holds its lease before an
	// expired lease makes it eligible for reaping back to queued.
	LeaseDuration time.Duration

	// ShutdownGrace is how long Stop waits for in-flight handlers before
	// abandoning them to lease expiry.
	ShutdownGrace time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	cfg := &QueueConfig{
		WorkerCount:        2,
		PollInterval:       1 * time.Second,
		PollIntervalJitter: 250 * time.Millisecond,
		LeaseDuration:      2 * time.Minute,
		ShutdownGrace:      30 * time.Second,
	}
	if v, ok := envInt("CONTEXTVAULT_QUEUE_WORKER_COUNT"); ok {
		cfg.WorkerCount = v
	}
	if v, ok := envDuration("CONTEXTVAULT_QUEUE_POLL_INTERVAL"); ok {
		cfg.PollInterval = v
	}
	if v, ok := envDuration("CONTEXTVAULT_QUEUE_LEASE_DURATION"); ok {
		cfg.LeaseDuration = v
	}
	return cfg
}

// BudgetConfig seeds the singleton BudgetLedger row and the Cost
// Governor's warning thresholds.
type BudgetConfig struct {
	DailyLimitCents        int64
	MonthlyLimitCents      int64
	PerOperationLimitCents int64

	// WarningThresholds are fractions of a limit (e.g. 0.8, 0.9, 1.0) at
	// which the governor emits one telemetry event per threshold per
	// period.
	WarningThresholds []float64
}

// DefaultBudgetConfig returns conservative built-in spending limits, a
// placeholder per SPEC_FULL.md's Open Question 4 — the shape is load
// bearing, the values are not.
func DefaultBudgetConfig() *BudgetConfig {
	cfg := &BudgetConfig{
		DailyLimitCents:        1000,  // $10/day
		MonthlyLimitCents:      20000, // $200/month
		PerOperationLimitCents: 50,    // $0.50/call
		WarningThresholds:      []float64{0.8, 0.9, 1.0},
	}
	if v, ok := envInt64("CONTEXTVAULT_BUDGET_DAILY_LIMIT_CENTS"); ok {
		cfg.DailyLimitCents = v
	}
	if v, ok := envInt64("CONTEXTVAULT_BUDGET_MONTHLY_LIMIT_CENTS"); ok {
		cfg.MonthlyLimitCents = v
	}
	if v, ok := envInt64("CONTEXTVAULT_BUDGET_PER_OPERATION_LIMIT_CENTS"); ok {
		cfg.PerOperationLimitCents = v
	}
	return cfg
}

// SanitizeConfig controls Fast Sanitizer time budgets.
type SanitizeConfig struct {
	PipelineSoftBudget time.Duration
	PipelineHardBudget time.Duration
}

// DefaultSanitizeConfig returns the budgets from SPEC_FULL.md §4.2.
func DefaultSanitizeConfig() *SanitizeConfig {
	return &SanitizeConfig{
		PipelineSoftBudget: 50 * time.Millisecond,
		PipelineHardBudget: 80 * time.Millisecond,
	}
}

// HookConfig controls the Hook Entry Point's hard wall-clock deadline and
// the max accepted event payload size.
type HookConfig struct {
	Deadline   time.Duration
	MaxEventKB int
}

// DefaultHookConfig returns the 100ms deadline and 1MiB payload cap from
// SPEC_FULL.md §4.4/§6.
func DefaultHookConfig() *HookConfig {
	cfg := &HookConfig{
		Deadline:   100 * time.Millisecond,
		MaxEventKB: 1024,
	}
	if v, ok := envDuration("CONTEXTVAULT_HOOK_DEADLINE"); ok {
		cfg.Deadline = v
	}
	return cfg
}

// TelemetryConfig controls the batched log writer and retention pruner.
type TelemetryConfig struct {
	FlushInterval    time.Duration
	RetentionWindow  time.Duration
	PruneRowCap      int64
	MetricWindowSize int
}

// DefaultTelemetryConfig returns the 100ms flush / 30-day retention /
// 10,000-row prune cap from SPEC_FULL.md §4.8 and §5.
func DefaultTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{
		FlushInterval:    100 * time.Millisecond,
		RetentionWindow:  30 * 24 * time.Hour,
		PruneRowCap:      10000,
		MetricWindowSize: 1000,
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
