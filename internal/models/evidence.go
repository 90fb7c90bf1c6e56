package models

import (
	"github.com/google/uuid"
)

// LegalChunk is a fragment of a legal text (customs code, decree,
// circular) indexed for retrieval.
type LegalChunk struct {
	ID            uuid.UUID  `json:"id"`
	ArticleNumber string     `json:"article_number,omitempty"` // normalized, e.g. "15" or "15 bis"
	Text          string     `json:"text"`
	Language      string     `json:"language"` // "fr" or "ar"
	SourceTitle   string     `json:"source_title"`
	SourceDocID   *uuid.UUID `json:"source_doc_id,omitempty"`
	DownloadURL   *string    `json:"download_url,omitempty"`
	Similarity    float64    `json:"similarity,omitempty"`
}

// KnowledgeDoc is an editorial knowledge-base article (procedures,
// FAQs, guidance).
type KnowledgeDoc struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	URL        *string   `json:"url,omitempty"`
	Country    string    `json:"country"`
	Similarity float64   `json:"similarity,omitempty"`
}

// WatchDocument is a monitoring/alert publication with an editorial
// importance tag that boosts its retrieval rank.
type WatchDocument struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Importance string    `json:"importance"` // high, medium, low
	URL        *string   `json:"url,omitempty"`
	Country    string    `json:"country"`
	Similarity float64   `json:"similarity,omitempty"`
}

// RAGContext aggregates every evidence category gathered for one
// question. Each list is already filtered to the requesting country and
// intent. Built once per request and discarded after the answer; only
// the validated answer text is cached.
type RAGContext struct {
	Question       string            `json:"question"`
	Country        string            `json:"country"`
	HistoryContext string            `json:"history_context,omitempty"`
	Tariffs        []EffectiveTariff `json:"tariffs,omitempty"`
	HSCodes        []HSCode          `json:"hs_codes,omitempty"`
	TariffRows     []TariffRow       `json:"tariff_rows,omitempty"`
	Controls       []ControlRow      `json:"controls,omitempty"`
	Notes          []TariffNote      `json:"notes,omitempty"`
	Knowledge      []KnowledgeDoc    `json:"knowledge,omitempty"`
	PDFs           []PDFDocument     `json:"pdfs,omitempty"`
	Legal          []LegalChunk      `json:"legal,omitempty"`
	Watch          []WatchDocument   `json:"watch,omitempty"`
	// Passages are the budgeted top-scored fragments fed to the prompt
	// in place of raw document text.
	Passages []ScoredPassage `json:"passages,omitempty"`
	// DocumentExtracts carries text pulled from user-attached files.
	DocumentExtracts []string `json:"document_extracts,omitempty"`
}

// SummaryCounts reports how many items each category contributed,
// attached to the final response for observability.
func (c *RAGContext) SummaryCounts() map[string]int {
	counts := make(map[string]int)
	put := func(k string, n int) {
		if n > 0 {
			counts[k] = n
		}
	}
	put("tariffs", len(c.Tariffs))
	put("hs_codes", len(c.HSCodes))
	put("tariff_rows", len(c.TariffRows))
	put("controls", len(c.Controls))
	put("notes", len(c.Notes))
	put("knowledge", len(c.Knowledge))
	put("pdfs", len(c.PDFs))
	put("legal", len(c.Legal))
	put("watch", len(c.Watch))
	put("passages", len(c.Passages))
	return counts
}
