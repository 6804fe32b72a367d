// Package publish implements the publish_learning job handler: a thin
// adapter over the external, content-addressed decentralized publishing
// layer (explicitly out of core scope per SPEC_FULL.md §1). The core's
// only responsibilities here are the two gates SPEC_FULL.md §4.6/§4.7
// require before anything leaves the local store — consent and
// revocation — plus recording the Upload row the publisher's response
// produces. Grounded on the teacher's claim-then-terminal-update
// transactional shape in pkg/queue/worker.go, generalized from "execute a
// session" to "publish one learning".
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/sanitize"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// ErrPolicyViolation is returned for conditions §7 maps to a non-retriable
// dead_letter transition: consent absent or withdrawn, or (when stage-2
// validation has not completed) a learning that fails the static whitelist
// policy.
var ErrPolicyViolation = errors.New("policy violation")

// ErrNotYetValidated is returned when the source conversation has not
// finished stage-2 validation and the candidate learning also fails the
// static whitelist policy §4.7 requires as a substitute safety bar. Unlike
// ErrPolicyViolation this is retriable: the job is held and tried again
// later, once validation has had time to catch up, rather than
// dead-lettered outright.
var ErrNotYetValidated = errors.New("source conversation not yet ai-validated")

// StaticAllowedCategories is the whitelist-only static policy's category
// gate, applied only when the source conversation has not finished stage-2
// validation (§4.7). These four categories are, by construction, the ones
// least likely to carry incidentally-retained contextual PII: they
// describe a reusable technique rather than a blow-by-blow account of what
// happened.
var StaticAllowedCategories = map[models.LearningCategory]bool{
	models.LearningPattern:      true,
	models.LearningBestPractice: true,
	models.LearningToolUsage:    true,
	models.LearningWorkflow:     true,
}

// Publisher is the vendor-opaque capability the core enqueues work against
// but never implements: content-addressed upload plus ledger anchoring,
// outside core per SPEC_FULL.md §1. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, content string) (contentAddress, anchorTx string, err error)
}

// Handler runs the publish_learning job: check consent, check the
// conversation has cleared validation (or the static policy substitute),
// check the learning hasn't already been revoked, then hand the sanitized
// content to Publisher and record the resulting Upload.
type Handler struct {
	db        *store.DB
	publisher Publisher
	sanitizer *sanitize.Sanitizer
	logger    *telemetry.Logger
}

// New returns a Handler.
func New(db *store.DB, publisher Publisher, logger *telemetry.Logger) *Handler {
	return &Handler{db: db, publisher: publisher, sanitizer: sanitize.New(), logger: logger}
}

// Publish implements the §4.6/§4.7 public contract for one learning id.
func (h *Handler) Publish(ctx context.Context, learningID string) (*models.Upload, error) {
	learning, err := h.db.Learnings().Get(ctx, learningID)
	if err != nil {
		return nil, fmt.Errorf("load learning: %w", err)
	}

	active, err := h.db.Consents().IsPublishingActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("check consent: %w", err)
	}
	if !active {
		return nil, fmt.Errorf("%w: no active consent permits publishing", ErrPolicyViolation)
	}

	existing, err := h.db.Uploads().ListByLearning(ctx, learningID)
	if err != nil {
		return nil, fmt.Errorf("check existing uploads: %w", err)
	}
	if up := h.latestLiveUpload(ctx, existing); up != nil {
		return up, nil // already published and not revoked: idempotent no-op
	}

	validated, err := h.db.Messages().AllValidated(ctx, learning.SourceConversationID)
	if err != nil {
		return nil, fmt.Errorf("check source validation: %w", err)
	}
	if !validated {
		if err := h.staticPolicyAllows(learning); err != nil {
			return nil, err
		}
		h.logInfo(ctx, "publish_static_policy_substitute", map[string]any{
			"learning_id": learningID,
			"category":    string(learning.Category),
		})
	}

	contentAddress, anchorTx, err := h.publisher.Publish(ctx, learning.Content)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	revoked, err := h.db.Revocations().IsRevoked(ctx, contentAddress)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: publisher returned a previously revoked content address", ErrPolicyViolation)
	}

	var upload *models.Upload
	err = h.db.WithTx(ctx, func(tx *store.Tx) error {
		upload, err = h.db.Uploads().Record(ctx, tx, learningID, contentAddress, anchorTx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	h.logInfo(ctx, "publish_completed", map[string]any{
		"learning_id":     learningID,
		"content_address": contentAddress,
	})
	return upload, nil
}

// staticPolicyAllows applies the whitelist-only static policy §4.7
// requires as a substitute safety bar when stage-2 validation hasn't run:
// the category must be on the conservative allowlist, confidence must be
// high, and re-running the Fast Sanitizer over the content must find
// nothing left to redact.
func (h *Handler) staticPolicyAllows(l *models.Learning) error {
	if !StaticAllowedCategories[l.Category] {
		return fmt.Errorf("%w: category %q is not publishable before ai validation completes", ErrNotYetValidated, l.Category)
	}
	if l.Confidence < 0.9 {
		return fmt.Errorf("%w: confidence %.2f below the pre-validation publish bar", ErrNotYetValidated, l.Confidence)
	}
	result := h.sanitizer.Sanitize(l.Content)
	if len(result.Detections) > 0 {
		return fmt.Errorf("%w: fast sanitizer still found %d span(s) to redact", ErrPolicyViolation, len(result.Detections))
	}
	return nil
}

// latestLiveUpload returns the most recent upload for a learning that has
// not since been revoked, or nil if there is none.
func (h *Handler) latestLiveUpload(ctx context.Context, uploads []*models.Upload) *models.Upload {
	for i := len(uploads) - 1; i >= 0; i-- {
		revoked, err := h.db.Revocations().IsRevoked(ctx, uploads[i].ContentAddress)
		if err == nil && !revoked {
			return uploads[i]
		}
	}
	return nil
}

func (h *Handler) logInfo(ctx context.Context, event string, fields map[string]any) {
	if h.logger != nil {
		h.logger.Info(ctx, event, fields)
	}
}
