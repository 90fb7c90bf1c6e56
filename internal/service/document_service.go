package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"douane-rag/internal/dto"
	"douane-rag/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyDocument rejects uploads with no extractable text.
var ErrEmptyDocument = errors.New("document has no text content")

// pageSize is the character window treated as one logical page during
// batched analysis.
const pageSize = 4000

// defaultBatchPages bounds how many pages one analysis call processes;
// interPageDelay spaces the upstream calls within a batch.
const (
	defaultBatchPages = 3
	maxBatchPages     = 10
	interPageDelay    = 500 * time.Millisecond
)

type documentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PDFDocument, error)
	GetContent(ctx context.Context, id uuid.UUID) (string, error)
	Create(ctx context.Context, doc *models.PDFDocument) error
	AppendExtraction(ctx context.Context, id uuid.UUID, summary, text string) error
}

type textExtractor interface {
	ExtractFromText(ctx context.Context, question, pageText string) (*DocumentExtraction, error)
}

// DocumentService stores uploaded documents and runs their analysis in
// resumable page batches, so large publications never tie up a single
// request.
type DocumentService struct {
	documents documentStore
	llm       textExtractor
	logger    *zap.Logger
}

func NewDocumentService(documents documentStore, llm textExtractor, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		documents: documents,
		llm:       llm,
		logger:    logger,
	}
}

var chapterTitlePattern = regexp.MustCompile(`(?i)chapitre\s+(\d{1,2})`)

// Upload stores a document's raw text and returns its shell. The page
// count is derived from the text length.
func (s *DocumentService) Upload(ctx context.Context, title, country, content string) (*models.PDFDocument, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyDocument
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Document sans titre"
	}

	doc := &models.PDFDocument{
		ID:        uuid.New(),
		Title:     title,
		Chapter:   chapterFromTitle(title),
		FullText:  content,
		PageCount: (len(content) + pageSize - 1) / pageSize,
		Country:   country,
		CreatedAt: time.Now(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("title", doc.Title),
		zap.Int("pages", doc.PageCount),
	)
	return doc, nil
}

func chapterFromTitle(title string) string {
	m := chapterTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	chapter := m[1]
	if len(chapter) == 1 {
		chapter = "0" + chapter
	}
	return chapter
}

// Analyze processes one batch of pages starting at the request cursor
// and persists the extraction. The response carries the cursor for the
// next batch; a negative cursor means the document is fully analyzed.
// A failing page ends the batch early so the client can resume from it.
func (s *DocumentService) Analyze(ctx context.Context, id uuid.UUID, req *dto.AnalyzeDocumentRequest) (*dto.AnalyzeDocumentResponse, error) {
	if _, err := s.documents.GetByID(ctx, id); err != nil {
		return nil, err
	}
	content, err := s.documents.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	pages := (len(content) + pageSize - 1) / pageSize

	start := req.StartPage
	if start < 0 {
		start = 0
	}
	if start >= pages {
		return &dto.AnalyzeDocumentResponse{NextPage: -1}, nil
	}

	batch := req.PageCount
	if batch <= 0 {
		batch = defaultBatchPages
	}
	if batch > maxBatchPages {
		batch = maxBatchPages
	}

	var (
		summary   string
		codes     []string
		texts     []string
		processed int
	)
	for page := start; page < start+batch && page < pages; page++ {
		if page > start {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interPageDelay):
			}
		}

		lo := page * pageSize
		hi := lo + pageSize
		if hi > len(content) {
			hi = len(content)
		}

		extraction, err := s.llm.ExtractFromText(ctx, req.Question, content[lo:hi])
		if err != nil {
			s.logger.Warn("page extraction failed",
				zap.String("document_id", id.String()),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}

		if extraction.Summary != "" {
			summary = extraction.Summary
		}
		codes = appendMissing(codes, extraction.SuggestedCodes)
		if extraction.Text != "" {
			texts = append(texts, extraction.Text)
		}
		processed++
	}

	if processed == 0 {
		return nil, ErrServiceUnavailable
	}

	if err := s.documents.AppendExtraction(ctx, id, summary, strings.Join(texts, "\n\n")); err != nil {
		s.logger.Warn("extraction persistence failed",
			zap.String("document_id", id.String()),
			zap.Error(err),
		)
	}

	next := start + processed
	if next >= pages {
		next = -1
	}
	return &dto.AnalyzeDocumentResponse{
		Summary:        summary,
		SuggestedCodes: codes,
		Text:           strings.Join(texts, "\n\n"),
		PagesProcessed: processed,
		NextPage:       next,
	}, nil
}
