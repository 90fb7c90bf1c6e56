package service

import (
	"context"
	"sort"

	"douane-rag/internal/hscode"
	"douane-rag/internal/models"
	"douane-rag/pkg/config"
	"douane-rag/pkg/embedcache"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Per-category search contracts, satisfied by the repositories.
type tariffSearcher interface {
	SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.TariffRow, error)
	KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.TariffRow, error)
}

type hsCodeSearcher interface {
	SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.HSCode, error)
	KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.HSCode, error)
}

type legalSearcher interface {
	SearchSimilar(ctx context.Context, language string, embedding []float32, threshold float64, limit int) ([]models.LegalChunk, error)
	KeywordSearch(ctx context.Context, language string, keywords []string, limit int) ([]models.LegalChunk, error)
}

type documentSearcher interface {
	SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.PDFDocument, error)
	KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.PDFDocument, error)
}

type knowledgeSearcher interface {
	SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.KnowledgeDoc, error)
	KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.KnowledgeDoc, error)
}

type watchSearcher interface {
	SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.WatchDocument, error)
}

// RetrieverService gathers evidence for a question across every indexed
// category. Each category runs a semantic search first and falls back
// to keyword matching when too few rows clear the similarity floor; the
// two result sets are fused by weighted rank. Retrieval is best-effort
// throughout: a failing category logs and contributes nothing.
type RetrieverService struct {
	llm        embedder
	embedCache *embedcache.Cache
	tariffs    tariffSearcher
	hsCodes    hsCodeSearcher
	legal      legalSearcher
	documents  documentSearcher
	knowledge  knowledgeSearcher
	watch      watchSearcher
	notes      noteStore
	controls   controlStore
	cfg        *config.RAGConfig
	logger     *zap.Logger
}

func NewRetrieverService(
	llm embedder,
	embedCache *embedcache.Cache,
	tariffs tariffSearcher,
	hsCodes hsCodeSearcher,
	legal legalSearcher,
	documents documentSearcher,
	knowledge knowledgeSearcher,
	watch watchSearcher,
	notes noteStore,
	controls controlStore,
	cfg *config.RAGConfig,
	logger *zap.Logger,
) *RetrieverService {
	return &RetrieverService{
		llm:        llm,
		embedCache: embedCache,
		tariffs:    tariffs,
		hsCodes:    hsCodes,
		legal:      legal,
		documents:  documents,
		knowledge:  knowledge,
		watch:      watch,
		notes:      notes,
		controls:   controls,
		cfg:        cfg,
		logger:     logger,
	}
}

// Retrieve fans out over all evidence categories in parallel and fills
// one RAGContext. Never returns an error; an unreachable embedding
// service degrades every category to its keyword path.
func (s *RetrieverService) Retrieve(ctx context.Context, analysis *QuestionAnalysis) *models.RAGContext {
	ragCtx := &models.RAGContext{
		Question:       analysis.Question,
		Country:        analysis.Country,
		HistoryContext: analysis.History.Prefix,
	}

	queryText := analysis.Question
	if analysis.History.Prefix != "" {
		queryText = analysis.History.Prefix + "\n" + analysis.Question
	}
	embedding := s.embedQuestion(ctx, queryText)

	keywords := analysis.Keywords
	if len(keywords) == 0 {
		keywords = analysis.History.Keywords
	}

	language := "fr"
	if analysis.IsArabic {
		language = "ar"
	}

	country := analysis.Country
	intent := analysis.PrimaryIntent
	topK := s.cfg.TopK

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ragCtx.TariffRows = searchHybrid(gctx, "tariff", s.cfg.MinResults, s.cfg.SemanticWeight,
			func(ctx context.Context) ([]models.TariffRow, error) {
				if embedding == nil {
					return nil, nil
				}
				return s.tariffs.SearchSimilar(ctx, country, embedding, s.codeThreshold(intent), topK)
			},
			func(ctx context.Context) ([]models.TariffRow, error) {
				return s.tariffs.KeywordSearch(ctx, country, keywords, topK)
			},
			func(t models.TariffRow) string { return t.CodeHS },
			func(t models.TariffRow) float64 { return t.Similarity },
			s.logger)
		return nil
	})
	g.Go(func() error {
		ragCtx.HSCodes = searchHybrid(gctx, "hs_code", s.cfg.MinResults, s.cfg.SemanticWeight,
			func(ctx context.Context) ([]models.HSCode, error) {
				if embedding == nil {
					return nil, nil
				}
				return s.hsCodes.SearchSimilar(ctx, country, embedding, s.codeThreshold(intent), topK)
			},
			func(ctx context.Context) ([]models.HSCode, error) {
				return s.hsCodes.KeywordSearch(ctx, country, keywords, topK)
			},
			func(c models.HSCode) string { return c.Code },
			func(c models.HSCode) float64 { return c.Similarity },
			s.logger)
		return nil
	})
	g.Go(func() error {
		ragCtx.Legal = searchHybrid(gctx, "legal", s.cfg.MinResults, s.cfg.SemanticWeight,
			func(ctx context.Context) ([]models.LegalChunk, error) {
				if embedding == nil {
					return nil, nil
				}
				return s.legal.SearchSimilar(ctx, language, embedding, s.legalThreshold(intent), topK)
			},
			func(ctx context.Context) ([]models.LegalChunk, error) {
				return s.legal.KeywordSearch(ctx, language, keywords, topK)
			},
			func(c models.LegalChunk) string { return c.ID.String() },
			func(c models.LegalChunk) float64 { return c.Similarity },
			s.logger)
		return nil
	})
	g.Go(func() error {
		pdfs := searchHybrid(gctx, "document", s.cfg.MinResults, s.cfg.SemanticWeight,
			func(ctx context.Context) ([]models.PDFDocument, error) {
				if embedding == nil {
					return nil, nil
				}
				return s.documents.SearchSimilar(ctx, country, embedding, s.documentThreshold(intent), topK)
			},
			func(ctx context.Context) ([]models.PDFDocument, error) {
				return s.documents.KeywordSearch(ctx, country, keywords, topK)
			},
			func(d models.PDFDocument) string { return d.ID.String() },
			func(d models.PDFDocument) float64 { return d.Similarity },
			s.logger)
		ragCtx.PDFs = rankPDFs(pdfs, topK)
		return nil
	})
	g.Go(func() error {
		ragCtx.Knowledge = searchHybrid(gctx, "knowledge", s.cfg.MinResults, s.cfg.SemanticWeight,
			func(ctx context.Context) ([]models.KnowledgeDoc, error) {
				if embedding == nil {
					return nil, nil
				}
				return s.knowledge.SearchSimilar(ctx, country, embedding, s.documentThreshold(intent), topK)
			},
			func(ctx context.Context) ([]models.KnowledgeDoc, error) {
				return s.knowledge.KeywordSearch(ctx, country, keywords, topK)
			},
			func(d models.KnowledgeDoc) string { return d.ID.String() },
			func(d models.KnowledgeDoc) float64 { return d.Similarity },
			s.logger)
		return nil
	})
	g.Go(func() error {
		if embedding == nil {
			return nil
		}
		docs, err := s.watch.SearchSimilar(gctx, country, embedding, s.cfg.DocumentThreshold, topK)
		if err != nil {
			s.logger.Warn("watch search failed", zap.Error(err))
			return nil
		}
		ragCtx.Watch = rankWatch(docs, topK)
		return nil
	})
	_ = g.Wait()

	s.attachRegulatory(ctx, country, analysis, ragCtx)

	s.logger.Debug("retrieval complete",
		zap.String("intent", string(intent)),
		zap.Any("counts", ragCtx.SummaryCounts()),
	)
	return ragCtx
}

// attachRegulatory loads tariff notes and control requirements for the
// codes retrieval surfaced: the question's own codes plus the codes of
// the retrieved tariff and nomenclature rows, expanded to their
// ancestor levels. Best-effort like the category searches.
func (s *RetrieverService) attachRegulatory(ctx context.Context, country string, analysis *QuestionAnalysis, ragCtx *models.RAGContext) {
	codes := regulatoryCodes(analysis, ragCtx)
	if len(codes) == 0 {
		return
	}

	notes, err := s.notes.ListByCodes(ctx, country, codes)
	if err != nil {
		s.logger.Warn("note retrieval failed", zap.Error(err))
	} else {
		ragCtx.Notes = notes
	}

	seen := make(map[string]struct{})
	for _, code := range analysis.Codes {
		normalized := hscode.Normalize(code)
		prefix := ""
		if len(normalized) > 4 {
			prefix = normalized[:4]
		}
		rows, err := s.controls.ListByCodeOrPrefix(ctx, country, normalized, prefix)
		if err != nil {
			s.logger.Warn("control retrieval failed",
				zap.String("code", normalized),
				zap.Error(err),
			)
			continue
		}
		for _, row := range rows {
			if _, dup := seen[row.ID.String()]; dup {
				continue
			}
			seen[row.ID.String()] = struct{}{}
			ragCtx.Controls = append(ragCtx.Controls, row)
		}
	}
}

// regulatoryCodes gathers every code level notes can attach to, deduped
// and including ancestors so chapter and heading notes are found.
func regulatoryCodes(analysis *QuestionAnalysis, ragCtx *models.RAGContext) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(code string) {
		for _, level := range append(hscode.Ancestors(code), code) {
			if _, dup := seen[level]; dup {
				continue
			}
			seen[level] = struct{}{}
			out = append(out, level)
		}
	}
	for _, c := range analysis.Codes {
		add(hscode.Normalize(c))
	}
	for _, row := range ragCtx.TariffRows {
		add(row.CodeHS)
	}
	for _, c := range ragCtx.HSCodes {
		add(c.Code)
	}
	return out
}

// embedQuestion memoizes the question embedding so the sub-searches of
// one request and immediate retries skip the upstream call.
func (s *RetrieverService) embedQuestion(ctx context.Context, text string) []float32 {
	if vector, ok := s.embedCache.Get(text); ok {
		return vector
	}
	vector, err := s.llm.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("question embedding failed, keyword-only retrieval", zap.Error(err))
		return nil
	}
	s.embedCache.Put(text, vector)
	return vector
}

// Classification questions widen the code net; legal and control
// questions widen the legal net. Other intents use the configured floor.
func (s *RetrieverService) codeThreshold(intent Intent) float64 {
	if intent == IntentClassify {
		return s.cfg.CodeThreshold - 0.05
	}
	return s.cfg.CodeThreshold
}

func (s *RetrieverService) legalThreshold(intent Intent) float64 {
	if intent == IntentLegal || intent == IntentControl {
		return s.cfg.LegalThreshold - 0.04
	}
	return s.cfg.LegalThreshold
}

func (s *RetrieverService) documentThreshold(intent Intent) float64 {
	if intent == IntentProcedure {
		return s.cfg.DocumentThreshold - 0.03
	}
	return s.cfg.DocumentThreshold
}

// searchHybrid is the two-phase strategy every category shares: run the
// semantic phase, and when it yields fewer than minResults rows, run
// the keyword phase and fuse the two lists. Errors in either phase are
// logged and treated as empty results.
func searchHybrid[T any](
	ctx context.Context,
	category string,
	minResults int,
	semWeight float64,
	semantic func(context.Context) ([]T, error),
	keyword func(context.Context) ([]T, error),
	id func(T) string,
	sim func(T) float64,
	logger *zap.Logger,
) []T {
	semResults, err := semantic(ctx)
	if err != nil {
		logger.Warn("semantic search failed",
			zap.String("category", category),
			zap.Error(err),
		)
		semResults = nil
	}
	if len(semResults) >= minResults {
		return semResults
	}

	kwResults, err := keyword(ctx)
	if err != nil {
		logger.Warn("keyword search failed",
			zap.String("category", category),
			zap.Error(err),
		)
		kwResults = nil
	}
	return fuseHybrid(semWeight, semResults, kwResults, id, sim)
}

// fuseHybrid merges semantic and keyword result lists. Duplicates keep
// the semantic copy (it carries the similarity score); ordering follows
// a weighted blend of cosine similarity and reciprocal keyword rank.
func fuseHybrid[T any](semWeight float64, semantic, keyword []T, id func(T) string, sim func(T) float64) []T {
	if len(keyword) == 0 {
		return semantic
	}

	type fused struct {
		item T
		u    models.UnifiedScoredResult
	}
	merged := make(map[string]*fused, len(semantic)+len(keyword))
	var order []string

	for _, item := range semantic {
		key := id(item)
		if _, dup := merged[key]; dup {
			continue
		}
		merged[key] = &fused{item: item, u: models.UnifiedScoredResult{
			ID:            key,
			SemanticScore: sim(item),
			HasSemantic:   true,
		}}
		order = append(order, key)
	}
	for rank, item := range keyword {
		key := id(item)
		if e, dup := merged[key]; dup {
			if !e.u.HasKeyword {
				e.u.KeywordRank = rank + 1
				e.u.HasKeyword = true
			}
			continue
		}
		merged[key] = &fused{item: item, u: models.UnifiedScoredResult{
			ID:          key,
			KeywordRank: rank + 1,
			HasKeyword:  true,
		}}
		order = append(order, key)
	}

	entries := make([]*fused, 0, len(order))
	for _, key := range order {
		e := merged[key]
		e.u.Score = fusedScore(semWeight, e.u)
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].u.Score > entries[j].u.Score
	})

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.item)
	}
	return out
}

func fusedScore(semWeight float64, u models.UnifiedScoredResult) float64 {
	var score float64
	if u.HasSemantic {
		score += semWeight * u.SemanticScore
	}
	if u.HasKeyword {
		score += (1 - semWeight) / float64(u.KeywordRank)
	}
	return score
}

// rankPDFs reorders documents by similarity scaled with a quality
// multiplier. A missing summary means the document was never analyzed,
// which makes its embedding weak evidence.
func rankPDFs(docs []models.PDFDocument, limit int) []models.PDFDocument {
	for i := range docs {
		docs[i].Similarity *= pdfQuality(&docs[i])
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Similarity > docs[j].Similarity
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func pdfQuality(d *models.PDFDocument) float64 {
	quality := 1.0
	if len(d.Summary) < 80 {
		quality *= 0.8
	}
	if d.URL == nil {
		quality *= 0.9
	}
	return quality
}

// rankWatch reorders monitoring documents by similarity scaled with the
// editorial importance tag.
func rankWatch(docs []models.WatchDocument, limit int) []models.WatchDocument {
	for i := range docs {
		docs[i].Similarity *= importanceWeight(docs[i].Importance)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Similarity > docs[j].Similarity
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func importanceWeight(importance string) float64 {
	switch importance {
	case "high":
		return 1.2
	case "low":
		return 0.85
	default:
		return 1.0
	}
}
