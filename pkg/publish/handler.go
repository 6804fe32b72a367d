package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/queue"
)

// payload is the job_queue.payload shape the Learning Extractor enqueues
// for a publish_learning job.
type payload struct {
	LearningID string `json:"learning_id"`
}

// Handler adapts Handler.Publish to the pkg/queue.Handler signature. A
// policy violation (consent withdrawn, revoked content address, or the
// static-policy substitute failing outright) is marked non-retriable so
// the Worker Pool routes it straight to dead_letter per SPEC_FULL.md §7's
// PolicyViolation handling; ErrNotYetValidated and any other error take
// the normal retry/backoff path, since a conversation that simply hasn't
// finished validation yet may clear on a later attempt.
func (h *Handler) Handler(ctx context.Context, job *models.Job) (string, error) {
	var p payload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.MarkNonRetriable(fmt.Errorf("parse job payload: %w", err))
	}
	if p.LearningID == "" {
		return "", queue.MarkNonRetriable(fmt.Errorf("job payload missing learning_id"))
	}

	upload, err := h.Publish(ctx, p.LearningID)
	if err != nil {
		if errors.Is(err, ErrPolicyViolation) {
			return "", queue.MarkNonRetriable(err)
		}
		return "", err
	}
	return fmt.Sprintf(`{"learning_id":%q,"content_address":%q,"anchor_tx":%q}`,
		p.LearningID, upload.ContentAddress, upload.AnchorTx), nil
}
