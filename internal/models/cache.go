package models

import (
	"time"

	"github.com/google/uuid"
)

// CachedResponse is a previously validated question/answer pair.
// Keyed by a content hash of the normalized question for exact dedup,
// with the embedding for fuzzy lookup. Entries expire after the
// configured retention window.
type CachedResponse struct {
	ID           uuid.UUID         `json:"id"`
	QuestionHash string            `json:"question_hash"` // SHA-256 of lowercased/trimmed question
	Question     string            `json:"question"`
	Embedding    []float32         `json:"-"`
	Answer       string            `json:"answer"`
	Confidence   Confidence        `json:"confidence"`
	Citations    []ValidatedSource `json:"citations,omitempty"`
	HasEvidence  bool              `json:"has_evidence"`
	HitCount     int               `json:"hit_count"`
	CreatedAt    time.Time         `json:"created_at"`
	Similarity   float64           `json:"similarity,omitempty"`
}
