package aivalidate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/queue"
)

// payload is the job_queue.payload shape the Hook Entry Point enqueues for
// an ai_sanitization_validation job.
type payload struct {
	MessageID string `json:"message_id"`
}

// Handler adapts Validator.Validate to the pkg/queue.Handler signature, so
// it can be registered directly with a WorkerPool under
// models.JobTypeAISanitizationValidation.
func (v *Validator) Handler(ctx context.Context, job *models.Job) (string, error) {
	var p payload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.MarkNonRetriable(fmt.Errorf("parse job payload: %w", err))
	}
	if p.MessageID == "" {
		return "", queue.MarkNonRetriable(fmt.Errorf("job payload missing message_id"))
	}

	if err := v.Validate(ctx, p.MessageID); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"message_id":%q,"validated":true}`, p.MessageID), nil
}
