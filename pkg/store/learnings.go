package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/dennisonbertram/contextvault/pkg/models"
)

// Learnings groups Learning-entity operations, including the embedding
// sidecar table used for similarity-based deduplication.
type Learnings struct{ db *DB }

// Learnings returns the Learning sub-API.
func (d *DB) Learnings() *Learnings { return &Learnings{db: d} }

// LearningInsertInput carries the fields the Learning Extractor supplies.
type LearningInsertInput struct {
	Category             models.LearningCategory
	Title                string
	Content              string
	Tags                 []string
	Confidence           float64
	SourceConversationID string
	SanitizerVersion     int
	ExtractorVersion     int
	Embedding            []float64
}

// Insert writes a new Learning and its embedding atomically. Category and
// content-length are also enforced by the table's CHECK constraints; the
// validation here exists to return a typed error rather than a raw driver
// error to the caller.
func (l *Learnings) Insert(ctx context.Context, tx *Tx, in LearningInsertInput) (*models.Learning, error) {
	if !models.ValidLearningCategories[in.Category] {
		return nil, NewValidationError("category", "not a recognized learning category")
	}
	if len(in.Content) < 100 {
		return nil, NewValidationError("content", "must be at least 100 characters")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, NewValidationError("confidence", "must be between 0 and 1")
	}

	tagsJSON, err := json.Marshal(in.Tags)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal tags: %v", ErrUnavailable, err)
	}

	learning := &models.Learning{
		ID:                   idgen.New(),
		Category:             in.Category,
		Title:                in.Title,
		Content:              in.Content,
		Tags:                 string(tagsJSON),
		Confidence:           in.Confidence,
		SourceConversationID: in.SourceConversationID,
		SanitizerVersion:     in.SanitizerVersion,
		ExtractorVersion:     in.ExtractorVersion,
		CreatedAt:            time.Now().UTC(),
	}

	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO learnings
			(id, category, title, content, tags, confidence, source_conversation_id,
			 sanitizer_version, extractor_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		learning.ID, learning.Category, learning.Title, learning.Content, learning.Tags,
		learning.Confidence, learning.SourceConversationID, learning.SanitizerVersion,
		learning.ExtractorVersion, learning.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert learning: %v", ErrUnavailable, err)
	}

	if len(in.Embedding) > 0 {
		vecJSON, err := json.Marshal(in.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal embedding: %v", ErrUnavailable, err)
		}
		_, err = tx.tx.ExecContext(ctx,
			`INSERT INTO learning_embeddings (learning_id, vector) VALUES (?, ?)`,
			learning.ID, string(vecJSON))
		if err != nil {
			return nil, fmt.Errorf("%w: insert embedding: %v", ErrUnavailable, err)
		}
	}

	return learning, nil
}

// Get fetches a learning by id.
func (l *Learnings) Get(ctx context.Context, id string) (*models.Learning, error) {
	var learning models.Learning
	err := l.db.conn.GetContext(ctx, &learning, `SELECT * FROM learnings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get learning: %v", ErrUnavailable, err)
	}
	return &learning, nil
}

// ListByCategory returns every learning in a category, newest first.
func (l *Learnings) ListByCategory(ctx context.Context, category models.LearningCategory) ([]*models.Learning, error) {
	var rows []*models.Learning
	err := l.db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM learnings WHERE category = ? ORDER BY created_at DESC`, category)
	if err != nil {
		return nil, fmt.Errorf("%w: list learnings by category: %v", ErrUnavailable, err)
	}
	return rows, nil
}

// embeddingRow pairs a learning id with its stored vector, for scanning
// results of a join-free bulk fetch.
type embeddingRow struct {
	LearningID string `db:"learning_id"`
	Vector     string `db:"vector"`
}

// MostSimilar scans every stored embedding and returns the learning id with
// the highest cosine similarity to candidate, along with that score. Returns
// ("", 0, nil) if no embeddings exist yet. A linear scan is adequate at the
// scale a single-operator local store holds; a real vector index is not
// warranted here.
func (l *Learnings) MostSimilar(ctx context.Context, candidate []float64) (learningID string, score float64, err error) {
	var rows []embeddingRow
	if err := l.db.conn.SelectContext(ctx, &rows, `SELECT learning_id, vector FROM learning_embeddings`); err != nil {
		return "", 0, fmt.Errorf("%w: scan embeddings: %v", ErrUnavailable, err)
	}

	best := -1.0
	bestID := ""
	for _, row := range rows {
		var vec []float64
		if err := json.Unmarshal([]byte(row.Vector), &vec); err != nil {
			continue
		}
		sim := cosineSimilarity(candidate, vec)
		if sim > best {
			best = sim
			bestID = row.LearningID
		}
	}
	if bestID == "" {
		return "", 0, nil
	}
	return bestID, best, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
