package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/sanitize"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// DeadlineP95 and DeadlineP99 are the latency targets one invocation is
// held to. Breaching them is never a user-visible error, only a telemetry
// event: the hook always completes and always exits 0.
const (
	DeadlineP95 = 100 * time.Millisecond
	DeadlineP99 = 150 * time.Millisecond
)

// AckOK is the single short acknowledgment line printed to w on success.
const AckOK = "ok"

// Handler runs the READ -> PARSE -> NORMALIZE+SANITIZE -> (one Tx) UPSERT
// conv, INSERT msg, INSERT job -> EMIT ack -> DONE state machine for one
// invocation, over the Store and Sanitizer it is constructed with.
type Handler struct {
	db        *store.DB
	sanitizer *sanitize.Sanitizer
	logger    *telemetry.Logger
}

// New returns a Handler. logger may be nil, in which case telemetry is
// skipped (still satisfies the "never block the host" contract).
func New(db *store.DB, sanitizer *sanitize.Sanitizer, logger *telemetry.Logger) *Handler {
	if sanitizer == nil {
		sanitizer = sanitize.New()
	}
	return &Handler{db: db, sanitizer: sanitizer, logger: logger}
}

// Handle reads one JSON event from r, sanitizes and persists it, writes a
// single short acknowledgment line to w on success, or a diagnostic line to
// errW on any failure. It always returns nil: the public contract requires
// the process to exit 0 regardless of outcome, so cmd/hook's main need not
// branch on Handle's return value at all; it is only non-nil if even
// writing the diagnostic failed.
func (h *Handler) Handle(ctx context.Context, r io.Reader, w, errW io.Writer) error {
	start := time.Now()
	ctx, _ = telemetry.WithCorrelation(ctx, idgen.New)

	raw, err := io.ReadAll(io.LimitReader(r, MaxEventBytes+1))
	if err != nil {
		return h.fail(ctx, errW, "read error: "+err.Error())
	}
	if len(raw) > MaxEventBytes {
		return h.fail(ctx, errW, fmt.Sprintf("event exceeds %d byte limit", MaxEventBytes))
	}

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return h.fail(ctx, errW, "malformed JSON: "+err.Error())
	}
	if err := event.Validate(); err != nil {
		return h.fail(ctx, errW, "invalid event: "+err.Error())
	}

	h.logInfo(ctx, "hook_event_received", map[string]any{"role": string(event.Role)})

	result := h.sanitizer.Sanitize(event.Content)

	err = h.db.WithTx(ctx, func(tx *store.Tx) error {
		conv, err := h.db.Conversations().GetOrCreateBySessionKey(ctx, tx, event.SessionKey)
		if err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}

		msg, err := h.db.Messages().Insert(ctx, tx, store.InsertInput{
			ConversationID:      conv.ID,
			Role:                event.Role,
			Content:             result.Out,
			SanitizationVersion: sanitize.DetectorVersion,
		})
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if len(result.Detections) > 0 {
			detectionsJSON, err := json.Marshal(result.Detections)
			if err != nil {
				return fmt.Errorf("marshal detections: %w", err)
			}
			if _, err := h.db.SanitizationLogs().Append(ctx, tx, msg.ID, models.StagePreSanitization, string(detectionsJSON)); err != nil {
				return fmt.Errorf("append sanitization log: %w", err)
			}
		}

		if _, err := h.db.Jobs().Enqueue(ctx, tx, store.EnqueueInput{
			Type:           models.JobTypeAISanitizationValidation,
			Payload:        fmt.Sprintf(`{"message_id":%q}`, msg.ID),
			IdempotencyKey: fmt.Sprintf("validate-%s", msg.ID),
		}); err != nil {
			return fmt.Errorf("enqueue validation job: %w", err)
		}

		if event.Role == models.RoleAssistant {
			if _, err := h.db.Jobs().Enqueue(ctx, tx, store.EnqueueInput{
				Type:           models.JobTypeExtractLearning,
				Payload:        fmt.Sprintf(`{"conversation_id":%q}`, conv.ID),
				IdempotencyKey: fmt.Sprintf("learn-%s", msg.ID),
			}); err != nil {
				return fmt.Errorf("enqueue learning job: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return h.fail(ctx, errW, "store error: "+err.Error())
	}

	elapsed := time.Since(start)
	if elapsed > DeadlineP95 {
		h.logWarn(ctx, "hook_latency_breach", map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"deadline_ms": DeadlineP95.Milliseconds(),
		})
	}
	h.logInfo(ctx, "hook_completed", map[string]any{
		"duration_ms": elapsed.Milliseconds(),
		"role":        string(event.Role),
	})

	_, err = fmt.Fprintln(w, AckOK)
	return err
}

// fail logs the diagnostic and writes it to errW. It always returns nil:
// the public contract requires the process to exit 0 on any error.
func (h *Handler) fail(ctx context.Context, errW io.Writer, reason string) error {
	h.logWarn(ctx, "hook_event_dropped", map[string]any{"reason": reason})
	_, _ = fmt.Fprintf(errW, "dropped: %s\n", reason)
	return nil
}

func (h *Handler) logInfo(ctx context.Context, event string, fields map[string]any) {
	if h.logger != nil {
		h.logger.Info(ctx, event, fields)
	}
}

func (h *Handler) logWarn(ctx context.Context, event string, fields map[string]any) {
	if h.logger != nil {
		h.logger.Warn(ctx, event, fields)
	}
}
