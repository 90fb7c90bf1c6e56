package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"douane-rag/internal/dto"
	"douane-rag/internal/models"
	"douane-rag/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyQuestion rejects requests with nothing to answer.
var ErrEmptyQuestion = errors.New("question is required")

// cacheStoreTimeout bounds the background write after the response has
// already been sent.
const cacheStoreTimeout = 30 * time.Second

type chatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPayload string) (string, error)
	AnalyzeImage(ctx context.Context, mimeType, data, question string) (string, error)
}

type documentGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PDFDocument, error)
}

// ChatService runs the full advisory pipeline for one question:
// analysis, cache lookup, evidence gathering, answer generation and
// citation validation.
type ChatService struct {
	analyzer  *AnalyzerService
	resolver  *ResolverService
	retriever *RetrieverService
	scorer    *ScorerService
	reranker  *RerankerService
	prompt    *PromptService
	validator *ValidatorService
	cache     *CacheService
	llm       chatCompleter
	documents documentGetter
	cfg       *config.RAGConfig
	logger    *zap.Logger
}

func NewChatService(
	analyzer *AnalyzerService,
	resolver *ResolverService,
	retriever *RetrieverService,
	scorer *ScorerService,
	reranker *RerankerService,
	prompt *PromptService,
	validator *ValidatorService,
	cache *CacheService,
	llm chatCompleter,
	documents documentGetter,
	cfg *config.RAGConfig,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		analyzer:  analyzer,
		resolver:  resolver,
		retriever: retriever,
		scorer:    scorer,
		reranker:  reranker,
		prompt:    prompt,
		validator: validator,
		cache:     cache,
		llm:       llm,
		documents: documents,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask answers one question. Attachments bypass the cache on both the
// read and the write side.
func (s *ChatService) Ask(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	analysis := s.analyzer.Analyze(question, req.ConversationHistory)

	hasAttachments := len(req.Images) > 0 || len(req.PDFDocuments) > 0
	if !hasAttachments {
		if entry := s.cache.Lookup(ctx, question); entry != nil {
			return &dto.ChatResponse{
				ResponseText: entry.Answer,
				Confidence:   entry.Confidence,
				Citations:    entry.Citations,
				Cached:       true,
			}, nil
		}
	}

	extracts := s.gatherAttachments(ctx, req, question)

	codes := analysis.Codes
	if len(codes) == 0 {
		codes = analysis.History.Codes
	}
	for _, extract := range extracts {
		codes = appendMissing(codes, s.analyzer.ExtractCodes(extract))
	}

	var (
		ragCtx   *models.RAGContext
		resolved []models.EffectiveTariff
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ragCtx = s.retriever.Retrieve(gctx, &analysis)
		return nil
	})
	g.Go(func() error {
		for _, code := range codes {
			resolved = append(resolved, *s.resolver.Resolve(gctx, analysis.Country, code))
		}
		return nil
	})
	_ = g.Wait()

	ragCtx.Tariffs = resolved
	ragCtx.DocumentExtracts = extracts

	keywords := analysis.Keywords
	if len(keywords) == 0 {
		keywords = analysis.History.Keywords
	}
	passages := s.scorer.ExtractTopPassages(ragCtx, codes, keywords)
	ragCtx.Passages = s.reranker.Rerank(ctx, question, passages)

	payload := s.prompt.BuildUserPayload(ragCtx)
	if breakdown := s.tryDutyBreakdown(&analysis, resolved); breakdown != nil {
		payload = FormatDutyBreakdown(breakdown) + "\n\n" + payload
	}

	answer, err := s.llm.Complete(ctx, s.prompt.BuildSystemPrompt(&analysis), payload)
	if err != nil {
		return nil, err
	}

	validation, answer := s.validator.Validate(ctx, analysis.Country, answer, ragCtx)

	// Response first, cache write in the background.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheStoreTimeout)
	go func() {
		defer cancel()
		s.cache.Store(storeCtx, question, answer, validation, len(req.Images) > 0)
	}()

	return &dto.ChatResponse{
		ResponseText:         answer,
		Confidence:           validation.Confidence,
		Citations:            validation.Sources,
		ContextSummaryCounts: ragCtx.SummaryCounts(),
	}, nil
}

// gatherAttachments turns images and referenced documents into text
// extracts. Failures are logged and skipped; an unreadable attachment
// never fails the question.
func (s *ChatService) gatherAttachments(ctx context.Context, req *dto.ChatRequest, question string) []string {
	var extracts []string

	for _, img := range req.Images {
		text, err := s.llm.AnalyzeImage(ctx, img.MimeType, img.Data, question)
		if err != nil {
			s.logger.Warn("image analysis failed",
				zap.String("file", img.FileName),
				zap.Error(err),
			)
			continue
		}
		if text != "" {
			extracts = append(extracts, "Analyse de l'image "+img.FileName+" :\n"+text)
		}
	}

	for _, ref := range req.PDFDocuments {
		id, err := uuid.Parse(ref.DocumentID)
		if err != nil {
			s.logger.Warn("invalid document reference", zap.String("document_id", ref.DocumentID))
			continue
		}
		doc, err := s.documents.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn("referenced document unavailable",
				zap.String("document_id", ref.DocumentID),
				zap.Error(err),
			)
			continue
		}
		if doc.Summary != "" {
			extracts = append(extracts, "Document "+doc.Title+" :\n"+doc.Summary)
		}
	}
	return extracts
}

// cifPattern matches an amount followed by a currency marker, e.g.
// "10 000 DH" or "2.500,50 EUR".
var cifPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:[\s.]\d{3})*(?:,\d{1,2})?|\d+(?:\.\d{1,2})?)\s*(?:dhs?|dirhams?|mad|euros?|eur|usd|dollars?|€|\$)`)

// tryDutyBreakdown precomputes the itemized cost when the question is a
// calculation with a stated CIF value and a usable rate. The model gets
// the arithmetic done for it instead of being trusted to do it.
func (s *ChatService) tryDutyBreakdown(analysis *QuestionAnalysis, resolved []models.EffectiveTariff) *models.DutyBreakdown {
	if analysis.PrimaryIntent != IntentCalculate || len(resolved) == 0 {
		return nil
	}
	cif, ok := extractCIFValue(analysis.Question)
	if !ok {
		return nil
	}

	for i := range resolved {
		breakdown, err := CalculateForTariff(cif, &resolved[i])
		if err == nil {
			return breakdown
		}
	}
	return nil
}

func extractCIFValue(question string) (float64, bool) {
	match := cifPattern.FindStringSubmatch(question)
	if match == nil {
		return 0, false
	}

	raw := match[1]
	raw = strings.ReplaceAll(raw, " ", "")
	if strings.Contains(raw, ",") {
		// European style: dots group thousands, comma is the decimal mark.
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	} else if strings.Count(raw, ".") > 1 {
		raw = strings.ReplaceAll(raw, ".", "")
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func appendMissing(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
