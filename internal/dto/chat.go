package dto

import "douane-rag/internal/models"

// ImageAttachment is an inline image sent with a question.
type ImageAttachment struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	// Data is base64-encoded image content.
	Data string `json:"data"`
}

// PDFAttachment references an uploaded document to consult for this question.
type PDFAttachment struct {
	DocumentID string `json:"document_id"`
}

// ChatRequest is the request shape consumed by the RAG core.
type ChatRequest struct {
	Question            string            `json:"question"`
	SessionID           string            `json:"session_id"`
	Images              []ImageAttachment `json:"images,omitempty"`
	PDFDocuments        []PDFAttachment   `json:"pdf_documents,omitempty"`
	ConversationHistory []models.ChatTurn `json:"conversation_history,omitempty"`
}

// ChatResponse is the validated answer returned to the caller.
type ChatResponse struct {
	ResponseText         string                   `json:"response_text"`
	Confidence           models.Confidence        `json:"confidence"`
	Citations            []models.ValidatedSource `json:"citations"`
	ContextSummaryCounts map[string]int           `json:"context_summary_counts,omitempty"`
	Cached               bool                     `json:"cached"`
}

// AnalyzeDocumentRequest drives paginated extraction of a stored document.
// StartPage lets a client resume from the last completed page.
type AnalyzeDocumentRequest struct {
	Question  string `json:"question,omitempty"`
	StartPage int    `json:"start_page,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
}

// AnalyzeDocumentResponse carries one batch of extraction results plus
// the cursor for the next batch. NextPage < 0 means extraction finished.
type AnalyzeDocumentResponse struct {
	Summary        string   `json:"summary"`
	SuggestedCodes []string `json:"suggested_codes,omitempty"`
	Text           string   `json:"text,omitempty"`
	PagesProcessed int      `json:"pages_processed"`
	NextPage       int      `json:"next_page"`
}

// UploadDocumentResponse acknowledges a stored upload.
type UploadDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	PageCount  int    `json:"page_count,omitempty"`
}
