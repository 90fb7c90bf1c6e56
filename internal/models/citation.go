package models

// MatchedBy records which signal tied a citation to the generated answer.
type MatchedBy string

const (
	MatchedByHSCode  MatchedBy = "hs_code"
	MatchedByKeyword MatchedBy = "keyword"
	MatchedByChapter MatchedBy = "chapter"
	MatchedByDirect  MatchedBy = "direct"
)

// Confidence is the citation trust level surfaced to the user.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFor maps the match signal to a confidence level. The mapping
// is deterministic: an exact code or direct match is always high, a
// chapter-only match medium, a keyword-only match low.
func ConfidenceFor(m MatchedBy) Confidence {
	switch m {
	case MatchedByHSCode, MatchedByDirect:
		return ConfidenceHigh
	case MatchedByChapter:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ValidatedSource is a citation that passed post-generation validation
// against retrieved evidence. Only ValidatedSources may be surfaced to
// the end user.
type ValidatedSource struct {
	ID          string     `json:"id"`
	Type        SourceType `json:"type"`
	Title       string     `json:"title"`
	Reference   string     `json:"reference"`
	DownloadURL *string    `json:"download_url,omitempty"`
	MatchedBy   MatchedBy  `json:"matched_by"`
	Confidence  Confidence `json:"confidence"`
}

// RejectedSource records an evidence item that failed validation and
// why, kept for debuggability rather than silently dropped.
type RejectedSource struct {
	ID     string     `json:"id"`
	Type   SourceType `json:"type"`
	Reason string     `json:"reason"`
}

// ValidationResult is the outcome of cross-checking generated text
// against raw evidence.
type ValidationResult struct {
	Sources     []ValidatedSource `json:"sources"`
	Rejected    []RejectedSource  `json:"rejected,omitempty"`
	HasEvidence bool              `json:"has_evidence"`
	Confidence  Confidence        `json:"confidence"`
}
