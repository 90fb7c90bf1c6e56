package models

// SourceType tags which evidence category a result came from.
type SourceType string

const (
	SourceTariff    SourceType = "tariff"
	SourceNote      SourceType = "note"
	SourceLegal     SourceType = "legal"
	SourceEvidence  SourceType = "evidence"
	SourcePDF       SourceType = "pdf"
	SourceKnowledge SourceType = "knowledge"
	SourceWatch     SourceType = "watch"
)

// ScoredPassage is a text fragment with the relevance score produced by
// the passage scorer, plus what matched. Ephemeral within one request.
type ScoredPassage struct {
	Text            string     `json:"text"`
	Score           float64    `json:"score"`
	MatchedCodes    []string   `json:"matched_codes,omitempty"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
	Source          SourceType `json:"source"`
	SourceID        string     `json:"source_id,omitempty"`
	SourceTitle     string     `json:"source_title,omitempty"`
	// Truncated marks a high-scoring passage cut to fit the budget
	// instead of being dropped.
	Truncated bool `json:"truncated,omitempty"`
}

// UnifiedScoredResult is the common shape retrieval categories are
// fused into before ranking.
type UnifiedScoredResult struct {
	ID     string     `json:"id"`
	Source SourceType `json:"source"`
	Title  string     `json:"title"`
	Text   string     `json:"text"`
	// SemanticScore and KeywordRank feed the weighted rank fusion;
	// Score is the fused value used for ordering.
	SemanticScore float64 `json:"semantic_score,omitempty"`
	KeywordRank   int     `json:"keyword_rank,omitempty"`
	Score         float64 `json:"score"`
	HasSemantic   bool    `json:"-"`
	HasKeyword    bool    `json:"-"`
}
