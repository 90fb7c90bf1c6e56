package service

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"douane-rag/internal/hscode"
	"douane-rag/internal/models"
	"douane-rag/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxCitations caps the source list surfaced to the user.
const maxCitations = 10

// noEvidenceDisclaimer is appended when no citation could be validated.
const noEvidenceDisclaimer = "\n\n---\nCette réponse n'a pas pu être adossée à une source vérifiée. " +
	"Vérifiez les informations auprès de l'administration des douanes avant toute démarche."

type articleFinder interface {
	GetByArticleNumbers(ctx context.Context, numbers []string) ([]models.LegalChunk, error)
	ResolveDownloadURL(ctx context.Context, sourceDocID uuid.UUID) (string, error)
	FindCanonicalCodeDocument(ctx context.Context) (*models.PDFDocument, error)
}

type chapterPDFFinder interface {
	FindChapterPDF(ctx context.Context, country, chapter string) (*models.PDFDocument, error)
}

// ValidatorService cross-checks the generated answer against the
// evidence that was actually retrieved. Codes and article references
// the model invented are rejected, never cited.
type ValidatorService struct {
	legal     articleFinder
	documents chapterPDFFinder
	logger    *zap.Logger
}

func NewValidatorService(legal articleFinder, documents chapterPDFFinder, logger *zap.Logger) *ValidatorService {
	return &ValidatorService{
		legal:     legal,
		documents: documents,
		logger:    logger,
	}
}

// Extraction patterns, one per priority tier. Bold codes are the
// answer's own emphasis and the most trustworthy signal.
var (
	boldCodePattern  = regexp.MustCompile(`\*\*([\d][\d.\s-]{2,13}[\d])\*\*`)
	labelCodePattern = regexp.MustCompile(`(?i)codes?(?:\s+(?:sh|tarifaires?|nomenclatures?))?\s*:?\s+(\d[\d.\s-]{2,13}\d)`)
	dottedPattern    = regexp.MustCompile(`\d{2,4}(?:\.\d{2,4}){1,4}`)
	bareDigitPattern = regexp.MustCompile(`\d{4,10}`)

	frArticlePattern = regexp.MustCompile(`(?i)art(?:icle|\.)\s+(\d+(?:\s+(?:bis|ter|quater))?)`)
	arArticlePattern = regexp.MustCompile(`المادة\s+(\d+)`)
)

// ExtractCodesFromResponse pulls tariff codes out of the generated
// answer. Tiers are tried in priority order (bold, labeled, dotted
// prose, bare digits) and the first tier yielding a plausible code
// wins. Chapter 00 never passes.
func ExtractCodesFromResponse(answer string) []string {
	tiers := [][]string{
		captures(boldCodePattern, answer),
		captures(labelCodePattern, answer),
		dottedPattern.FindAllString(answer, -1),
		bareDigitPattern.FindAllString(answer, -1),
	}

	for _, tier := range tiers {
		var codes []string
		seen := make(map[string]struct{})
		for _, raw := range tier {
			normalized := hscode.Normalize(raw)
			if !hscode.IsPlausible(normalized) {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			codes = append(codes, normalized)
		}
		if len(codes) > 0 {
			return codes
		}
	}
	return nil
}

func captures(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// ExtractArticleReferences pulls normalized article numbers from the
// answer, both French and Arabic citation styles.
func ExtractArticleReferences(answer string) []string {
	var numbers []string
	seen := make(map[string]struct{})
	for _, raw := range append(captures(frArticlePattern, answer), captures(arArticlePattern, answer)...) {
		normalized := strings.ToLower(strings.Join(strings.Fields(raw), " "))
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		numbers = append(numbers, normalized)
	}
	return numbers
}

// Validate checks every code and article reference the answer cites
// against the retrieved evidence and returns the citation list plus the
// answer, amended with a disclaimer when nothing could be validated.
func (s *ValidatorService) Validate(ctx context.Context, country, answer string, ragCtx *models.RAGContext) (*models.ValidationResult, string) {
	result := &models.ValidationResult{Confidence: models.ConfidenceLow}

	s.validateCodes(ExtractCodesFromResponse(answer), ragCtx, result)
	s.validateArticles(ctx, ExtractArticleReferences(answer), result)
	s.backfillChapterURLs(ctx, country, result.Sources)

	result.Sources = dedupeSources(result.Sources)
	sortSources(result.Sources)
	if len(result.Sources) > maxCitations {
		result.Sources = result.Sources[:maxCitations]
	}

	result.HasEvidence = len(result.Sources) > 0
	for _, src := range result.Sources {
		if confidenceRank(src.Confidence) > confidenceRank(result.Confidence) {
			result.Confidence = src.Confidence
		}
	}

	if !result.HasEvidence {
		answer += noEvidenceDisclaimer
	}
	return result, answer
}

// validateCodes matches cited codes against the retrieved evidence
// only: resolved tariffs first, then retrieved rows, then chapter-level
// agreement with retrieved rows and PDFs, then keyword overlap in the
// scored passages. A code matching nothing that was retrieved is
// rejected, never cited.
func (s *ValidatorService) validateCodes(codes []string, ragCtx *models.RAGContext, result *models.ValidationResult) {
	resolved := make(map[string]struct{})
	for _, t := range ragCtx.Tariffs {
		if t.Found {
			resolved[t.Code] = struct{}{}
		}
	}
	retrieved := make(map[string]string)
	chapters := make(map[string]struct{})
	for _, row := range ragCtx.TariffRows {
		retrieved[row.CodeHS] = row.Description
		chapters[hscode.Chapter(row.CodeHS)] = struct{}{}
	}
	for _, c := range ragCtx.HSCodes {
		if _, dup := retrieved[c.Code]; !dup {
			retrieved[c.Code] = c.Description
		}
		chapters[hscode.Chapter(c.Code)] = struct{}{}
	}

	for _, code := range codes {
		if _, ok := resolved[code]; ok {
			result.Sources = append(result.Sources, models.ValidatedSource{
				ID:         code,
				Type:       models.SourceTariff,
				Title:      "Tarif des douanes",
				Reference:  hscode.Format(code),
				MatchedBy:  models.MatchedByDirect,
				Confidence: models.ConfidenceFor(models.MatchedByDirect),
			})
			continue
		}
		if title, ok := retrieved[code]; ok {
			result.Sources = append(result.Sources, models.ValidatedSource{
				ID:         code,
				Type:       models.SourceTariff,
				Title:      title,
				Reference:  hscode.Format(code),
				MatchedBy:  models.MatchedByHSCode,
				Confidence: models.ConfidenceFor(models.MatchedByHSCode),
			})
			continue
		}

		chapter := hscode.Chapter(code)
		if doc := retrievedChapterPDF(ragCtx, chapter); doc != nil {
			result.Sources = append(result.Sources, models.ValidatedSource{
				ID:          doc.ID.String(),
				Type:        models.SourcePDF,
				Title:       doc.Title,
				Reference:   hscode.Format(code),
				DownloadURL: doc.URL,
				MatchedBy:   models.MatchedByChapter,
				Confidence:  models.ConfidenceFor(models.MatchedByChapter),
			})
			continue
		}
		if _, ok := chapters[chapter]; ok {
			result.Sources = append(result.Sources, models.ValidatedSource{
				ID:         code,
				Type:       models.SourceTariff,
				Title:      "Tarif des douanes, chapitre " + chapter,
				Reference:  hscode.Format(code),
				MatchedBy:  models.MatchedByChapter,
				Confidence: models.ConfidenceFor(models.MatchedByChapter),
			})
			continue
		}
		if p := keywordPassage(ragCtx, chapter); p != nil {
			result.Sources = append(result.Sources, models.ValidatedSource{
				ID:         p.SourceID,
				Type:       p.Source,
				Title:      p.SourceTitle,
				Reference:  hscode.Format(code),
				MatchedBy:  models.MatchedByKeyword,
				Confidence: models.ConfidenceFor(models.MatchedByKeyword),
			})
			continue
		}

		result.Rejected = append(result.Rejected, models.RejectedSource{
			ID:     code,
			Type:   models.SourceTariff,
			Reason: "code absent des éléments récupérés",
		})
	}
}

// retrievedChapterPDF finds a chapter-scoped document among the PDFs
// that were actually retrieved for this question.
func retrievedChapterPDF(ragCtx *models.RAGContext, chapter string) *models.PDFDocument {
	for i := range ragCtx.PDFs {
		if ragCtx.PDFs[i].Chapter == chapter {
			return &ragCtx.PDFs[i]
		}
	}
	return nil
}

// keywordPassage returns a scored passage backing the cited chapter
// through keyword overlap. Keyword evidence alone is not trusted; the
// passage must also carry a code from the same chapter.
func keywordPassage(ragCtx *models.RAGContext, chapter string) *models.ScoredPassage {
	for i := range ragCtx.Passages {
		p := &ragCtx.Passages[i]
		if len(p.MatchedKeywords) == 0 {
			continue
		}
		for _, mc := range p.MatchedCodes {
			if hscode.Chapter(mc) == chapter {
				return p
			}
		}
	}
	return nil
}

// backfillChapterURLs retrofits a download link from the chapter
// publication onto validated tariff citations that lack one. Lookup
// failures leave the citation without a link; they never reject it.
func (s *ValidatorService) backfillChapterURLs(ctx context.Context, country string, sources []models.ValidatedSource) {
	cache := make(map[string]*string)
	for i := range sources {
		src := &sources[i]
		if src.Type != models.SourceTariff || src.DownloadURL != nil {
			continue
		}
		chapter := hscode.Chapter(src.ID)
		url, seen := cache[chapter]
		if !seen {
			doc, err := s.documents.FindChapterPDF(ctx, country, chapter)
			switch {
			case err == nil:
				url = doc.URL
			case errors.Is(err, repository.ErrNotFound):
			default:
				s.logger.Warn("chapter pdf lookup failed",
					zap.String("chapter", chapter),
					zap.Error(err),
				)
			}
			cache[chapter] = url
		}
		src.DownloadURL = url
	}
}

// validateArticles confirms cited article numbers exist in the legal
// index and attaches a download link when the chain to the source
// document is intact.
func (s *ValidatorService) validateArticles(ctx context.Context, numbers []string, result *models.ValidationResult) {
	if len(numbers) == 0 {
		return
	}

	chunks, err := s.legal.GetByArticleNumbers(ctx, numbers)
	if err != nil {
		s.logger.Warn("article lookup failed", zap.Error(err))
		for _, n := range numbers {
			result.Rejected = append(result.Rejected, models.RejectedSource{
				ID:     n,
				Type:   models.SourceLegal,
				Reason: "vérification indisponible",
			})
		}
		return
	}

	found := make(map[string]models.LegalChunk)
	for _, chunk := range chunks {
		if _, dup := found[chunk.ArticleNumber]; !dup {
			found[chunk.ArticleNumber] = chunk
		}
	}

	for _, n := range numbers {
		chunk, ok := found[n]
		if !ok {
			result.Rejected = append(result.Rejected, models.RejectedSource{
				ID:     n,
				Type:   models.SourceLegal,
				Reason: "article introuvable dans l'index juridique",
			})
			continue
		}
		result.Sources = append(result.Sources, models.ValidatedSource{
			ID:          chunk.ID.String(),
			Type:        models.SourceLegal,
			Title:       chunk.SourceTitle,
			Reference:   "Article " + n,
			DownloadURL: s.articleURL(ctx, &chunk),
			MatchedBy:   models.MatchedByDirect,
			Confidence:  models.ConfidenceFor(models.MatchedByDirect),
		})
	}
}

func (s *ValidatorService) articleURL(ctx context.Context, chunk *models.LegalChunk) *string {
	if chunk.DownloadURL != nil {
		return chunk.DownloadURL
	}
	if chunk.SourceDocID != nil {
		if url, err := s.legal.ResolveDownloadURL(ctx, *chunk.SourceDocID); err == nil {
			return &url
		}
	}
	if doc, err := s.legal.FindCanonicalCodeDocument(ctx); err == nil {
		return doc.URL
	}
	return nil
}

func dedupeSources(sources []models.ValidatedSource) []models.ValidatedSource {
	seen := make(map[string]struct{}, len(sources))
	out := sources[:0]
	for _, src := range sources {
		key := string(src.Type) + "|" + src.Reference
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, src)
	}
	return out
}

func sortSources(sources []models.ValidatedSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		ri, rj := confidenceRank(sources[i].Confidence), confidenceRank(sources[j].Confidence)
		if ri != rj {
			return ri > rj
		}
		return sources[i].Reference < sources[j].Reference
	})
}

func confidenceRank(c models.Confidence) int {
	switch c {
	case models.ConfidenceHigh:
		return 3
	case models.ConfidenceMedium:
		return 2
	default:
		return 1
	}
}
