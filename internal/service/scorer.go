package service

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"douane-rag/internal/hscode"
	"douane-rag/internal/models"
	"douane-rag/pkg/config"

	"go.uber.org/zap"
)

// Additive scoring weights. An exact code hit dominates everything
// else; keyword evidence saturates logarithmically.
const (
	weightExactCode  = 10.0
	weightHeading    = 5.0
	weightChapter    = 2.0
	weightKeyword    = 3.0
	weightRegulatory = 2.0
)

// minParagraphChars drops fragments too short to carry evidence;
// targetParagraphChars is the merge floor for choppy source text.
const (
	minParagraphChars    = 30
	targetParagraphChars = 300
)

// maxPassageChars is where the length penalty starts biting, so one
// giant paragraph cannot crowd out the budget on bulk alone.
const maxPassageChars = 1200

// truncateScoreFloor is the minimum score an oversized passage must
// carry to be truncated into the budget instead of skipped.
const truncateScoreFloor = weightHeading

// regulatoryTerms earn a flat bonus: passages carrying obligations or
// prohibitions matter even without a code or keyword hit.
var regulatoryTerms = []string{
	"interdit", "prohibé", "prohibe", "restriction", "autorisation", "licence",
	"décret", "decret", "arrêté", "arrete", "circulaire", "article", "obligatoire",
	"ممنوع", "محظور", "ترخيص", "مرسوم", "قانون",
}

// ScorerService turns retrieved evidence into a budgeted list of the
// most relevant passages. Pure computation, no I/O.
type ScorerService struct {
	cfg    *config.RAGConfig
	logger *zap.Logger
}

func NewScorerService(cfg *config.RAGConfig, logger *zap.Logger) *ScorerService {
	return &ScorerService{
		cfg:    cfg,
		logger: logger,
	}
}

// SplitIntoParagraphs breaks source text on blank lines, drops
// fragments under 30 characters and merges short paragraphs upward
// until each block reaches roughly 300 characters.
func SplitIntoParagraphs(text string) []string {
	var fragments []string
	for _, raw := range strings.Split(text, "\n\n") {
		fragment := strings.TrimSpace(raw)
		if len(fragment) < minParagraphChars {
			continue
		}
		fragments = append(fragments, fragment)
	}

	var merged []string
	var current string
	for _, fragment := range fragments {
		if current == "" {
			current = fragment
		} else {
			current += "\n\n" + fragment
		}
		if len(current) >= targetParagraphChars {
			merged = append(merged, current)
			current = ""
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}

// ScorePassage rates one passage against the question's codes and
// keywords. The score is additive; matches are recorded for citation
// validation downstream.
func ScorePassage(text string, codes, keywords []string) models.ScoredPassage {
	passage := models.ScoredPassage{Text: text}
	lowered := strings.ToLower(text)

	passageCodes := make(map[string]struct{})
	for _, match := range codePattern.FindAllString(text, -1) {
		if n := hscode.Normalize(match); hscode.IsPlausible(n) {
			passageCodes[n] = struct{}{}
		}
	}

	for _, code := range codes {
		best := 0.0
		for pc := range passageCodes {
			switch {
			case pc == code || strings.HasPrefix(pc, code):
				best = math.Max(best, weightExactCode)
			case len(code) >= 4 && len(pc) >= 4 && pc[:4] == code[:4]:
				best = math.Max(best, weightHeading)
			case hscode.Chapter(pc) == hscode.Chapter(code):
				best = math.Max(best, weightChapter)
			}
		}
		if best > 0 {
			passage.Score += best
			passage.MatchedCodes = append(passage.MatchedCodes, code)
		}
	}

	for _, kw := range keywords {
		count := strings.Count(lowered, strings.ToLower(kw))
		if count > 0 {
			passage.Score += weightKeyword * math.Log1p(float64(count))
			passage.MatchedKeywords = append(passage.MatchedKeywords, kw)
		}
	}

	for _, term := range regulatoryTerms {
		if strings.Contains(lowered, term) {
			passage.Score += weightRegulatory
			break
		}
	}

	if len(text) > maxPassageChars {
		passage.Score -= float64(len(text)-maxPassageChars) / 600.0
	}
	return passage
}

// ExtractTopPassages scores every paragraph of the retrieved evidence
// and greedily packs the best ones into the character budget. A
// high-scoring passage that no longer fits whole is truncated and
// included rather than dropped; lesser ones are skipped so smaller
// passages can still fill the budget.
func (s *ScorerService) ExtractTopPassages(ragCtx *models.RAGContext, codes, keywords []string) []models.ScoredPassage {
	candidates := s.collectCandidates(ragCtx, codes, keywords)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	var selected []models.ScoredPassage
	remaining := s.cfg.PassageBudget
	for _, candidate := range candidates {
		if len(selected) >= s.cfg.MaxPassages || remaining <= 0 {
			break
		}
		if candidate.Score <= 0 {
			break
		}
		if len(candidate.Text) > remaining {
			if candidate.Score < truncateScoreFloor || remaining < targetParagraphChars {
				continue
			}
			candidate.Text = truncateAtRune(candidate.Text, remaining)
			candidate.Truncated = true
		}
		remaining -= len(candidate.Text)
		selected = append(selected, candidate)
	}

	s.logger.Debug("passages selected",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(selected)),
		zap.Int("budget_left", remaining),
	)
	return selected
}

// truncateAtRune cuts text to at most limit bytes without splitting a
// multibyte rune.
func truncateAtRune(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

func (s *ScorerService) collectCandidates(ragCtx *models.RAGContext, codes, keywords []string) []models.ScoredPassage {
	var candidates []models.ScoredPassage

	add := func(text string, source models.SourceType, id, title string) {
		for _, paragraph := range SplitIntoParagraphs(text) {
			passage := ScorePassage(paragraph, codes, keywords)
			passage.Source = source
			passage.SourceID = id
			passage.SourceTitle = title
			candidates = append(candidates, passage)
		}
	}

	for _, chunk := range ragCtx.Legal {
		add(chunk.Text, models.SourceLegal, chunk.ID.String(), chunk.SourceTitle)
	}
	for _, doc := range ragCtx.Knowledge {
		add(doc.Content, models.SourceKnowledge, doc.ID.String(), doc.Title)
	}
	for _, doc := range ragCtx.PDFs {
		add(doc.Summary, models.SourcePDF, doc.ID.String(), doc.Title)
	}
	for _, doc := range ragCtx.Watch {
		add(doc.Content, models.SourceWatch, doc.ID.String(), doc.Title)
	}
	for _, note := range ragCtx.Notes {
		add(note.Note, models.SourceNote, note.ID.String(), hscode.Format(note.CodeHS))
	}
	for _, extract := range ragCtx.DocumentExtracts {
		add(extract, models.SourceEvidence, "", "document joint")
	}
	return candidates
}
