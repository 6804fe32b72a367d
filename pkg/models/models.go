// Package models holds the entity types shared across the store, hook,
// sanitization, queue, budget, telemetry, and learning packages.
package models

import "time"

// Role identifies who produced a Message.
type Role string

// Valid Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is a session of exchanged messages grouped by the host's
// opaque session key.
type Conversation struct {
	ID         string    `db:"id"`
	SessionKey string    `db:"session_key"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Message is one sanitized utterance within a Conversation.
type Message struct {
	ID                   string    `db:"id"`
	ConversationID       string    `db:"conversation_id"`
	Role                 Role      `db:"role"`
	Sequence             int       `db:"sequence"`
	Content              string    `db:"content"`
	PreSanitized         bool      `db:"pre_sanitized"`
	AIValidated          bool      `db:"ai_validated"`
	AIDetections         *string   `db:"ai_detections"` // JSON array, nullable
	SanitizationVersion  int       `db:"sanitization_version"`
	CreatedAt            time.Time `db:"created_at"`
}

// SanitizationStage identifies which pass of the sanitization pipeline
// produced a SanitizationLog row.
type SanitizationStage string

// Valid SanitizationLog stages.
const (
	StagePreSanitization SanitizationStage = "pre_sanitization"
	StageAIValidation    SanitizationStage = "ai_validation"
)

// SanitizationLog is an immutable audit row recording what was redacted,
// never the original value.
type SanitizationLog struct {
	ID         string             `db:"id"`
	MessageID  string             `db:"message_id"`
	Stage      SanitizationStage  `db:"stage"`
	Detections string             `db:"detections"` // JSON array of Detection
	CreatedAt  time.Time          `db:"created_at"`
}

// Detection describes one redacted span. The original value is never
// retained anywhere in a Detection.
type Detection struct {
	Category       string  `json:"category"`
	Placeholder    string  `json:"placeholder"`
	Start          int     `json:"start"`
	End            int     `json:"end"`
	Confidence     float64 `json:"confidence,omitempty"`
	Detector       string  `json:"detector"`
	DetectorVersion int    `json:"detector_version"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// JobStatus is one of the closed set of Job lifecycle states.
type JobStatus string

// Valid JobStatus values.
const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobDeadLetter JobStatus = "dead_letter"
)

// JobType is one of the closed set of job kinds the core knows how to run.
type JobType string

// Valid JobType values.
const (
	JobTypeAISanitizationValidation JobType = "ai_sanitization_validation"
	JobTypeExtractLearning          JobType = "extract_learning"
	JobTypePublishLearning          JobType = "publish_learning"
)

// Job is a unit of deferred work.
type Job struct {
	ID             string     `db:"id"`
	Type           JobType    `db:"type"`
	Payload        string     `db:"payload"` // JSON
	Status         JobStatus  `db:"status"`
	Priority       int        `db:"priority"`
	Attempts       int        `db:"attempts"`
	MaxAttempts    int        `db:"max_attempts"`
	IdempotencyKey *string    `db:"idempotency_key"`
	ScheduledAt    time.Time  `db:"scheduled_at"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at"`
	StartedAt      *time.Time `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
	Error          *string    `db:"error"`
	Result         *string    `db:"result"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// BudgetLedger is the singleton row tracking LLM spend against configured
// limits. All money figures are integer cents.
type BudgetLedger struct {
	ID                       string    `db:"id"`
	DailyLimitCents          int64     `db:"daily_limit_cents"`
	MonthlyLimitCents        int64     `db:"monthly_limit_cents"`
	PerOperationLimitCents   int64     `db:"per_operation_limit_cents"`
	CurrentDailySpendCents   int64     `db:"current_daily_spend_cents"`
	CurrentMonthlySpendCents int64     `db:"current_monthly_spend_cents"`
	PeriodStart              time.Time `db:"period_start"`
	LastResetAt              time.Time `db:"last_reset_at"`
}

// ApiCallStatus is one of the closed set of ApiCall lifecycle states.
type ApiCallStatus string

// Valid ApiCallStatus values.
const (
	ApiCallReserved  ApiCallStatus = "reserved"
	ApiCallSuccess   ApiCallStatus = "success"
	ApiCallError     ApiCallStatus = "error"
	ApiCallCancelled ApiCallStatus = "cancelled"
)

// ApiCall is one row per external LLM call, used to enforce idempotent,
// exactly-once billing against the BudgetLedger.
type ApiCall struct {
	ID                 string        `db:"id"`
	IdempotencyKey      string        `db:"idempotency_key"`
	Operation          string        `db:"operation"`
	Model              string        `db:"model"`
	Status             ApiCallStatus `db:"status"`
	InputTokens        int64         `db:"input_tokens"`
	OutputTokens       int64         `db:"output_tokens"`
	EstimatedCostCents int64         `db:"estimated_cost_cents"`
	CostCents          int64         `db:"cost_cents"`
	CorrelationID      string        `db:"correlation_id"`
	CreatedAt          time.Time     `db:"created_at"`
}

// LearningCategory is one of the eight closed-set categories a Learning
// can belong to.
type LearningCategory string

// Valid LearningCategory values.
const (
	LearningPattern      LearningCategory = "pattern"
	LearningBestPractice LearningCategory = "best_practice"
	LearningAntiPattern  LearningCategory = "anti_pattern"
	LearningBugFix       LearningCategory = "bug_fix"
	LearningOptimization LearningCategory = "optimization"
	LearningToolUsage    LearningCategory = "tool_usage"
	LearningWorkflow     LearningCategory = "workflow"
	LearningDecision     LearningCategory = "decision"
)

// ValidLearningCategories enumerates every accepted category value.
var ValidLearningCategories = map[LearningCategory]bool{
	LearningPattern:      true,
	LearningBestPractice: true,
	LearningAntiPattern:  true,
	LearningBugFix:       true,
	LearningOptimization: true,
	LearningToolUsage:    true,
	LearningWorkflow:     true,
	LearningDecision:     true,
}

// Learning is a distilled, reusable, category-tagged insight derived from a
// sanitized conversation.
type Learning struct {
	ID                   string           `db:"id"`
	Category             LearningCategory `db:"category"`
	Title                string           `db:"title"`
	Content              string           `db:"content"`
	Tags                 string           `db:"tags"` // JSON array of strings
	Confidence           float64          `db:"confidence"`
	SourceConversationID string           `db:"source_conversation_id"`
	SanitizerVersion     int              `db:"sanitizer_version"`
	ExtractorVersion     int              `db:"extractor_version"`
	CreatedAt            time.Time        `db:"created_at"`
}

// AttributionMode describes how a shared Learning is attributed upstream.
type AttributionMode string

// Valid AttributionMode values.
const (
	AttributionAnonymous    AttributionMode = "anonymous"
	AttributionPseudonymous AttributionMode = "pseudonymous"
	AttributionAttributed   AttributionMode = "attributed"
)

// Consent is the user's opt-in record governing whether Learnings may be
// published.
type Consent struct {
	ID                     string          `db:"id"`
	GivenAt                time.Time       `db:"given_at"`
	WithdrawnAt            *time.Time      `db:"withdrawn_at"`
	Version                string          `db:"version"`
	TextHash               string          `db:"text_hash"`
	ShareEnabled           bool            `db:"share_enabled"`
	ManualApprovalRequired bool            `db:"manual_approval_required"`
	Attribution            AttributionMode `db:"attribution"`
	AgeConfirmed           bool            `db:"age_confirmed"`
	RetentionExpiresAt     *time.Time      `db:"retention_expires_at"`
}

// Active reports whether consent currently permits publishing: given,
// not withdrawn, and not past its retention window.
func (c Consent) Active(now time.Time) bool {
	if c.WithdrawnAt != nil {
		return false
	}
	if !c.ShareEnabled {
		return false
	}
	if c.RetentionExpiresAt != nil && now.After(*c.RetentionExpiresAt) {
		return false
	}
	return true
}

// Upload records a Learning pushed to the decentralized publishing layer.
type Upload struct {
	ID             string    `db:"id"`
	LearningID     string    `db:"learning_id"`
	ContentAddress string    `db:"content_address"`
	AnchorTx       string    `db:"anchor_tx"`
	UploadedAt     time.Time `db:"uploaded_at"`
}

// Revocation is a logical-deletion marker excluding an already-published
// content address from future query results.
type Revocation struct {
	ID             string    `db:"id"`
	ContentAddress string    `db:"content_address"`
	Reason         string    `db:"reason"`
	RevokedAt      time.Time `db:"revoked_at"`
}

// LogEntry is one allowlist-validated structured log record, persisted in
// batches by the Telemetry Core's buffered writer.
type LogEntry struct {
	ID            string    `db:"id"`
	Level         string    `db:"level"`
	EventName     string    `db:"event_name"`
	CorrelationID string    `db:"correlation_id"`
	ParentSpanID  string    `db:"parent_span_id"`
	Metadata      string    `db:"metadata"` // JSON object, allowlisted keys only
	CreatedAt     time.Time `db:"created_at"`
}

// MetricSample is one latency observation feeding the sliding-window
// percentile tracker's persisted history.
type MetricSample struct {
	ID         int64     `db:"id"`
	Operation  string    `db:"operation"`
	DurationMs float64   `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}
