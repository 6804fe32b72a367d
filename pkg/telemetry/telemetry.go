// Package telemetry is the privacy-safe observability core: an
// allowlist-validated structured log writer, a scoped correlation context,
// a sliding-window percentile tracker, and a retention pruner, all
// persisted through pkg/store the way the teacher threads slog.With(...)
// scoped loggers through pkg/queue, but with every emitted field checked
// against a fixed per-event schema before it reaches disk.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Level is the severity of one log event.
type Level string

// Valid Levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// FieldSchema describes one allowlisted metadata field for a given event
// name.
type FieldSchema struct {
	Required bool
}

// EventSchema is the allowlist for one event_name: only these keys may
// appear in its metadata, and Required ones must be present.
type EventSchema map[string]FieldSchema

// Logger validates every emitted event's metadata against its registered
// schema before handing it to the batched Store writer. Unknown events
// (never registered) are allowed through with no metadata checks, since
// the allowlist exists to keep known event shapes honest, not to block
// ad-hoc diagnostics.
type Logger struct {
	schemas map[string]EventSchema
	writer  *Writer
	debug   *slog.Logger
}

// New returns a Logger backed by writer, following the teacher's
// slog.With(...) idiom for the process-local echo (stderr, in production
// the hook's only permitted stream per SPEC_FULL.md §6) alongside the
// durable, allowlisted write.
func New(writer *Writer) *Logger {
	return &Logger{
		schemas: defaultSchemas(),
		writer:  writer,
		debug:   slog.Default(),
	}
}

// Register adds or replaces the allowlist schema for an event name.
func (l *Logger) Register(eventName string, schema EventSchema) {
	l.schemas[eventName] = schema
}

// Info records an info-level event.
func (l *Logger) Info(ctx context.Context, eventName string, metadata map[string]any) {
	l.emit(ctx, LevelInfo, eventName, metadata)
}

// Warn records a warn-level event.
func (l *Logger) Warn(ctx context.Context, eventName string, metadata map[string]any) {
	l.emit(ctx, LevelWarn, eventName, metadata)
}

// Error records an error-level event.
func (l *Logger) Error(ctx context.Context, eventName string, metadata map[string]any) {
	l.emit(ctx, LevelError, eventName, metadata)
}

func (l *Logger) emit(ctx context.Context, level Level, eventName string, metadata map[string]any) {
	cleaned, rejected, missing := l.validate(eventName, metadata)
	if len(rejected) > 0 {
		// Never log rejected values, only the key names — a rejected
		// field is, by definition, something the schema didn't expect to
		// see.
		l.debug.Warn("telemetry field rejected by allowlist", "event_name", eventName, "rejected_keys", rejected)
	}
	if len(missing) > 0 {
		l.emitRaw(ctx, LevelWarn, "log_schema_violation", map[string]any{
			"event_name":   eventName,
			"missing_keys": missing,
		})
		return
	}
	l.emitRaw(ctx, level, eventName, cleaned)
}

func (l *Logger) validate(eventName string, metadata map[string]any) (cleaned map[string]any, rejected, missing []string) {
	schema, ok := l.schemas[eventName]
	if !ok {
		return metadata, nil, nil
	}
	cleaned = make(map[string]any, len(metadata))
	for k, v := range metadata {
		if _, allowed := schema[k]; allowed {
			cleaned[k] = v
		} else {
			rejected = append(rejected, k)
		}
	}
	for k, f := range schema {
		if !f.Required {
			continue
		}
		if _, present := cleaned[k]; !present {
			missing = append(missing, k)
		}
	}
	return cleaned, rejected, missing
}

func (l *Logger) emitRaw(ctx context.Context, level Level, eventName string, metadata map[string]any) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}
	entry := models.LogEntry{
		ID:            idgen.New(),
		Level:         string(level),
		EventName:     eventName,
		CorrelationID: CorrelationID(ctx),
		ParentSpanID:  ParentSpanID(ctx),
		Metadata:      string(metaJSON),
	}
	l.writer.Enqueue(entry)

	switch level {
	case LevelError:
		l.debug.Error(eventName, "correlation_id", entry.CorrelationID, "metadata", string(metaJSON))
	case LevelWarn:
		l.debug.Warn(eventName, "correlation_id", entry.CorrelationID, "metadata", string(metaJSON))
	default:
		l.debug.Info(eventName, "correlation_id", entry.CorrelationID, "metadata", string(metaJSON))
	}
}

// defaultSchemas is the built-in allowlist for every event the core itself
// emits. Components may Register additional events (or tighten these) at
// startup.
func defaultSchemas() map[string]EventSchema {
	return map[string]EventSchema{
		"hook_event_received": {
			"role": {Required: true},
		},
		"hook_completed": {
			"duration_ms": {Required: true},
			"role":        {Required: false},
		},
		"hook_latency_breach": {
			"duration_ms": {Required: true},
			"deadline_ms": {Required: true},
		},
		"hook_event_dropped": {
			"reason": {Required: true},
		},
		"sanitizer_pattern_disabled": {
			"category": {Required: true},
		},
		"sanitizer_budget_exceeded": {
			"elapsed_ms": {Required: true},
		},
		"sanitizer_failure": {
			"reason": {Required: false},
		},
		"job_enqueued": {
			"job_type": {Required: true},
		},
		"job_claimed": {
			"job_type": {Required: true},
			"job_id":   {Required: true},
		},
		"job_claim_stale": {
			"job_id":          {Required: true},
			"scheduled_at":    {Required: true},
			"staleness_hours": {Required: false},
		},
		"job_completed": {
			"job_type": {Required: true},
			"job_id":   {Required: true},
		},
		"job_failed": {
			"job_type": {Required: true},
			"job_id":   {Required: true},
			"attempts": {Required: false},
		},
		"job_dead_lettered": {
			"job_type": {Required: true},
			"job_id":   {Required: true},
		},
		"budget_threshold_crossed": {
			"period":     {Required: true},
			"threshold":  {Required: true},
			"limit_type": {Required: false},
		},
		"budget_exceeded": {
			"operation": {Required: true},
			"limit":     {Required: true},
		},
		"ai_validation_completed": {
			"message_id":     {Required: true},
			"detection_count": {Required: false},
		},
		"learning_extracted": {
			"conversation_id": {Required: true},
			"count":           {Required: false},
		},
		"learning_rejected_duplicate": {
			"conversation_id": {Required: true},
			"similarity":      {Required: false},
		},
		"oracle_http_request": {
			"method": {Required: true},
			"host":   {Required: false},
		},
		"log_schema_violation": {},
	}
}
