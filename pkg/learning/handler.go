package learning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/queue"
)

// payload is the job_queue.payload shape the Hook Entry Point enqueues for
// an extract_learning job.
type payload struct {
	ConversationID string `json:"conversation_id"`
}

// Handler adapts Extractor.Extract to the pkg/queue.Handler signature, so
// it can be registered directly with a WorkerPool under
// models.JobTypeExtractLearning.
func (e *Extractor) Handler(ctx context.Context, job *models.Job) (string, error) {
	var p payload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return "", queue.MarkNonRetriable(fmt.Errorf("parse job payload: %w", err))
	}
	if p.ConversationID == "" {
		return "", queue.MarkNonRetriable(fmt.Errorf("job payload missing conversation_id"))
	}

	learnings, err := e.Extract(ctx, p.ConversationID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"conversation_id":%q,"learnings_extracted":%d}`, p.ConversationID, len(learnings)), nil
}
