// Package aivalidate implements the context-aware second-pass sanitizer:
// it asks the LLM oracle to find PII the deterministic Fast Sanitizer
// could not (personal names, organization names, addresses, novel
// credential formats) and re-redacts the stored message in place.
// Grounded on the teacher's retry/backoff shape in its queue executor and
// its claim-then-terminal-update transactional pattern in
// pkg/queue/worker.go, generalized from "execute a session" to "validate
// one message".
package aivalidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/budget"
	"github.com/dennisonbertram/contextvault/pkg/llmoracle"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/sanitize"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// ConfidenceThreshold is the minimum model-reported confidence a detection
// must meet to be acted on, per SPEC_FULL.md §4.3.
const ConfidenceThreshold = 0.80

// MaxConvergenceIterations bounds the "re-sanitize until stable" loop: the
// validator re-queries the model against its own output at most this many
// times, stopping early the moment an iteration finds nothing new.
const MaxConvergenceIterations = 3

var callTimeout = 10 * time.Second
var retryBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

const validatorModel = "gpt-4o-mini"

const systemPrompt = `You audit chat messages for personal data that automated pattern matching may have missed: personal names, organization names, physical addresses, and credential-shaped strings in unfamiliar formats. The message has already had obvious secrets and contact details redacted; focus on what remains. Respond with strict JSON only, matching this shape:
{"detections": [{"category": "PERSON_NAME", "text": "exact substring to redact", "start": 0, "end": 0, "confidence": 0.0, "reasoning": "short justification"}]}
If nothing qualifies, respond with {"detections": []}. Never include any text outside the JSON object.`

// rawDetection is the wire shape the model is instructed to emit.
type rawDetection struct {
	Category   string  `json:"category"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type modelOutput struct {
	Detections []rawDetection `json:"detections"`
}

// Validator runs the AI-assisted validation pass for one message at a
// time.
type Validator struct {
	db     *store.DB
	oracle llmoracle.Oracle
	gov    *budget.Governor
	logger *telemetry.Logger
}

// New returns a Validator.
func New(db *store.DB, oracle llmoracle.Oracle, gov *budget.Governor, logger *telemetry.Logger) *Validator {
	return &Validator{db: db, oracle: oracle, gov: gov, logger: logger}
}

// Validate implements the §4.3 public contract for one message id.
func (v *Validator) Validate(ctx context.Context, messageID string) error {
	msg, err := v.db.Messages().Get(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}

	content := msg.Content
	var finalDetections []sanitize.Detection

	for iteration := 0; iteration < MaxConvergenceIterations; iteration++ {
		detections, err := v.callOracle(ctx, messageID, content, iteration)
		if err != nil {
			return fmt.Errorf("oracle call (iteration %d): %w", iteration, err)
		}
		if len(detections) == 0 {
			break // converged: nothing new found this pass
		}
		content = redactSpans(content, detections)
		finalDetections = append(finalDetections, detections...)
	}

	detectionsJSON, err := marshalDetections(finalDetections)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	return v.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := v.db.Messages().ApplyAIValidation(ctx, tx, messageID, content, detectionsJSON); err != nil {
			return err
		}
		_, err := v.db.SanitizationLogs().Append(ctx, tx, messageID, models.StageAIValidation, detectionsJSON)
		return err
	})
}

// callOracle gates one model call behind the Cost Governor, with a 10s
// timeout and exponential backoff retries on transient failure, returning
// only detections at or above ConfidenceThreshold.
func (v *Validator) callOracle(ctx context.Context, messageID, content string, iteration int) ([]sanitize.Detection, error) {
	correlationID := telemetry.CorrelationID(ctx)
	idempotencyKey := fmt.Sprintf("ai-validate-%s-%d", messageID, iteration)

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff[attempt-1]):
			}
		}

		detections, err := v.attempt(ctx, idempotencyKey, messageID, content, correlationID)
		if err == nil {
			return detections, nil
		}
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return nil, err // budget won't recover within a retry window; fail now
		}
		lastErr = err
		if v.logger != nil {
			v.logger.Warn(ctx, "ai_validate_attempt_failed", map[string]any{
				"message_id": messageID,
				"attempt":    attempt,
				"error":      err.Error(),
			})
		}
	}
	return nil, lastErr
}

func (v *Validator) attempt(ctx context.Context, idempotencyKey, messageID, content, correlationID string) ([]sanitize.Detection, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	estimatedInputTokens := len(content) / 4
	estimatedOutputTokens := 256

	var reservation *budget.Reservation
	err := v.db.WithTx(attemptCtx, func(tx *store.Tx) error {
		var err error
		reservation, err = v.gov.Reserve(attemptCtx, tx, "ai_validate", validatorModel, estimatedInputTokens, estimatedOutputTokens, idempotencyKey, correlationID)
		return err
	})
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return nil, err // not retryable
		}
		return nil, fmt.Errorf("reserve budget: %w", err)
	}

	resp, oracleErr := v.oracle.Complete(attemptCtx, validatorModel, []llmoracle.Message{
		{Role: llmoracle.RoleSystem, Content: systemPrompt},
		{Role: llmoracle.RoleUser, Content: content},
	})

	reconcileErr := v.db.WithTx(context.Background(), func(tx *store.Tx) error {
		return v.gov.Reconcile(context.Background(), tx, reservation, validatorModel, reservationInputTokens(resp, estimatedInputTokens), reservationOutputTokens(resp, estimatedOutputTokens), oracleErr == nil)
	})
	if reconcileErr != nil && v.logger != nil {
		v.logger.Warn(context.Background(), "ai_validate_reconcile_failed", map[string]any{
			"message_id": messageID,
			"error":      reconcileErr.Error(),
		})
	}

	if oracleErr != nil {
		return nil, fmt.Errorf("oracle complete: %w", oracleErr)
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	return filterDetections(content, out.Detections), nil
}

func reservationInputTokens(resp *llmoracle.Response, fallback int) int {
	if resp == nil {
		return fallback
	}
	return resp.PromptTokens
}

func reservationOutputTokens(resp *llmoracle.Response, fallback int) int {
	if resp == nil {
		return fallback
	}
	return resp.CompletionTokens
}

// filterDetections drops low-confidence detections and any whose span no
// longer matches the claimed text (the model's offsets are advisory; the
// substring is authoritative).
func filterDetections(content string, raw []rawDetection) []sanitize.Detection {
	var out []sanitize.Detection
	for _, d := range raw {
		if d.Confidence < ConfidenceThreshold {
			continue
		}
		if d.Text == "" {
			continue
		}
		start, end, ok := locate(content, d)
		if !ok {
			continue
		}
		out = append(out, sanitize.Detection{
			Category:        d.Category,
			Placeholder:     redactionPlaceholder(d.Category),
			Start:           start,
			End:             end,
			Confidence:      d.Confidence,
			Detector:        "ai_validator",
			DetectorVersion: sanitize.DetectorVersion,
			Reasoning:       d.Reasoning,
		})
	}
	return out
}

// locate resolves the detection's span against content, preferring the
// model's reported offsets if they line up with the claimed text and
// falling back to the first literal occurrence otherwise.
func locate(content string, d rawDetection) (int, int, bool) {
	if d.Start >= 0 && d.End > d.Start && d.End <= len(content) && content[d.Start:d.End] == d.Text {
		return d.Start, d.End, true
	}
	idx := strings.Index(content, d.Text)
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(d.Text), true
}

func redactionPlaceholder(category string) string {
	if category == "" {
		category = "UNKNOWN"
	}
	return "[REDACTED_" + category + "]"
}

// redactSpans replaces every detection's span with its placeholder,
// processing in reverse offset order so earlier spans stay valid.
func redactSpans(content string, detections []sanitize.Detection) string {
	sorted := make([]sanitize.Detection, len(detections))
	copy(sorted, detections)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	out := content
	for _, d := range sorted {
		if d.Start < 0 || d.End > len(out) || d.Start > d.End {
			continue
		}
		out = out[:d.Start] + d.Placeholder + out[d.End:]
	}
	return out
}

func marshalDetections(detections []sanitize.Detection) (string, error) {
	if detections == nil {
		detections = []sanitize.Detection{}
	}
	b, err := json.Marshal(detections)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
