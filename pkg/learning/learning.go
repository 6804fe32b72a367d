// Package learning implements the Learning Extractor: it reads a
// sanitized, stable conversation, asks the LLM oracle to distill reusable
// insights from it, and persists the ones that clear the acceptance and
// deduplication bars. Grounded on the teacher's
// pkg/services/message_service.go validate-then-persist shape, generalized
// from "persist one validated message" to "extract, filter, and persist
// zero or more learnings from a conversation".
package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/budget"
	"github.com/dennisonbertram/contextvault/pkg/llmoracle"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
)

// AcceptanceConfidenceThreshold is the minimum model-reported confidence a
// candidate learning must meet, per SPEC_FULL.md §4.9.
const AcceptanceConfidenceThreshold = 0.6

// MinAssistantContentChars is the pre-filter floor on total assistant
// content length below which extraction is skipped as not worth the call.
const MinAssistantContentChars = 200

// SimilarityRejectThreshold is the cosine similarity at or above which a
// candidate is rejected as a near-duplicate of an existing learning.
const SimilarityRejectThreshold = 0.85

const extractorVersion = 1
const extractionModel = "gpt-4o-mini"
const extractionTemperature = 0.0 // not sent to the oracle (text-only interface); recorded for provenance

var callTimeout = 10 * time.Second

const systemPrompt = `You extract reusable engineering lessons from a coding assistant conversation. Only extract insights that would help on a DIFFERENT future task: a pattern, a best practice, an anti-pattern to avoid, a bug fix, an optimization, a tool-usage tip, a workflow, or a decision with its rationale. Ignore anything that is just task-specific detail. For each lesson worth keeping, emit an object with exactly these fields: category (one of pattern, best_practice, anti_pattern, bug_fix, optimization, tool_usage, workflow, decision), title (short), content (a self-contained explanation, at least 100 characters), tags (array of short strings), confidence (0..1), reasoning (why this is reusable). Respond with strict JSON: {"learnings": [...]}. If there is nothing worth keeping, respond with {"learnings": []}.`

type rawLearning struct {
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

type extractionOutput struct {
	Learnings []rawLearning `json:"learnings"`
}

// Extractor runs the Learning Extraction pass for one conversation at a
// time.
type Extractor struct {
	db       *store.DB
	oracle   llmoracle.Oracle
	gov      *budget.Governor
	embedder Embedder
	logger   *telemetry.Logger
}

// New returns an Extractor. embedder may be nil, in which case HashEmbed is
// used.
func New(db *store.DB, oracle llmoracle.Oracle, gov *budget.Governor, embedder Embedder, logger *telemetry.Logger) *Extractor {
	if embedder == nil {
		embedder = HashEmbed
	}
	return &Extractor{db: db, oracle: oracle, gov: gov, embedder: embedder, logger: logger}
}

// Extract implements the §4.9 public contract for one conversation id.
// It returns the learnings actually persisted; a nil slice with a nil
// error means the pre-filter rejected the conversation or the model found
// nothing worth keeping.
func (e *Extractor) Extract(ctx context.Context, conversationID string) ([]*models.Learning, error) {
	messages, err := e.db.Messages().ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if !passesPreFilter(messages) {
		return nil, nil
	}

	lastMessageID := messages[len(messages)-1].ID
	idempotencyKey := fmt.Sprintf("learn-%s-%s", conversationID, lastMessageID)

	candidates, err := e.extractCandidates(ctx, conversationID, messages, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("extract candidates: %w", err)
	}

	var accepted []*models.Learning
	for _, c := range candidates {
		learning, rejected, err := e.considerCandidate(ctx, conversationID, c)
		if err != nil {
			return accepted, fmt.Errorf("consider candidate: %w", err)
		}
		if rejected != "" {
			if e.logger != nil {
				e.logger.Info(ctx, "learning_candidate_rejected", map[string]any{
					"conversation_id": conversationID,
					"category":        c.Category,
					"reason":          rejected,
				})
			}
			continue
		}
		accepted = append(accepted, learning)
	}
	return accepted, nil
}

// passesPreFilter implements the heuristic gate: an assistant message must
// exist, total assistant content must reach the floor, and at least one
// value cue (a code fence or a problem-solving phrase) must be present.
func passesPreFilter(messages []*models.Message) bool {
	var assistantLen int
	var hasValueCue bool
	for _, m := range messages {
		if m.Role != models.RoleAssistant {
			continue
		}
		assistantLen += len(m.Content)
		if hasValueCue {
			continue
		}
		if strings.Contains(m.Content, "```") || containsAny(m.Content, valueCuePhrases) {
			hasValueCue = true
		}
	}
	if assistantLen < MinAssistantContentChars {
		return false
	}
	return hasValueCue
}

var valueCuePhrases = []string{
	"the issue was", "the bug was", "root cause", "fixed by", "the fix is",
	"instead of", "better approach", "the reason", "because", "trade-off",
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func (e *Extractor) extractCandidates(ctx context.Context, conversationID string, messages []*models.Message, idempotencyKey string) ([]rawLearning, error) {
	correlationID := telemetry.CorrelationID(ctx)
	transcript := renderTranscript(messages)

	reservation, err := e.reserve(ctx, idempotencyKey, correlationID, transcript)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, oracleErr := e.oracle.Complete(callCtx, extractionModel, []llmoracle.Message{
		{Role: llmoracle.RoleSystem, Content: systemPrompt},
		{Role: llmoracle.RoleUser, Content: transcript},
	})

	e.reconcile(ctx, reservation, resp, oracleErr)

	if oracleErr != nil {
		return nil, fmt.Errorf("oracle complete: %w", oracleErr)
	}

	var out extractionOutput
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return out.Learnings, nil
}

func (e *Extractor) reserve(ctx context.Context, idempotencyKey, correlationID, transcript string) (*budget.Reservation, error) {
	estimatedInputTokens := len(transcript) / 4
	const estimatedOutputTokens = 512

	var reservation *budget.Reservation
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		reservation, err = e.gov.Reserve(ctx, tx, "extract_learning", extractionModel, estimatedInputTokens, estimatedOutputTokens, idempotencyKey, correlationID)
		return err
	})
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve budget: %w", err)
	}
	return reservation, nil
}

func (e *Extractor) reconcile(ctx context.Context, reservation *budget.Reservation, resp *llmoracle.Response, oracleErr error) {
	inputTokens, outputTokens := 0, 0
	if resp != nil {
		inputTokens, outputTokens = resp.PromptTokens, resp.CompletionTokens
	}
	err := e.db.WithTx(context.Background(), func(tx *store.Tx) error {
		return e.gov.Reconcile(context.Background(), tx, reservation, extractionModel, inputTokens, outputTokens, oracleErr == nil)
	})
	if err != nil && e.logger != nil {
		e.logger.Warn(ctx, "extract_learning_reconcile_failed", map[string]any{"error": err.Error()})
	}
}

// considerCandidate validates, embeds, dedups, and persists one candidate.
// A non-empty rejected reason means the candidate was not stored.
func (e *Extractor) considerCandidate(ctx context.Context, conversationID string, c rawLearning) (learning *models.Learning, rejected string, err error) {
	category := models.LearningCategory(c.Category)
	if !models.ValidLearningCategories[category] {
		return nil, "invalid category", nil
	}
	if c.Confidence < AcceptanceConfidenceThreshold {
		return nil, "confidence below threshold", nil
	}
	if len(c.Content) < 100 {
		return nil, "content too short", nil
	}

	embedding := e.embedder(c.Content)
	_, similarity, err := e.db.Learnings().MostSimilar(ctx, embedding)
	if err != nil {
		return nil, "", fmt.Errorf("similarity scan: %w", err)
	}
	if similarity >= SimilarityRejectThreshold {
		return nil, "near-duplicate of an existing learning", nil
	}

	err = e.db.WithTx(ctx, func(tx *store.Tx) error {
		var insertErr error
		learning, insertErr = e.db.Learnings().Insert(ctx, tx, store.LearningInsertInput{
			Category:             category,
			Title:                c.Title,
			Content:              c.Content,
			Tags:                 c.Tags,
			Confidence:           c.Confidence,
			SourceConversationID: conversationID,
			SanitizerVersion:     1,
			ExtractorVersion:     extractorVersion,
			Embedding:            embedding,
		})
		return insertErr
	})
	if err != nil {
		return nil, "", fmt.Errorf("insert learning: %w", err)
	}
	return learning, "", nil
}

func renderTranscript(messages []*models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}
