package service

import (
	"sort"
	"strings"
	"unicode"

	"douane-rag/internal/hscode"
	"douane-rag/internal/models"

	"go.uber.org/zap"
)

// historyWindow bounds how many trailing conversation turns are scanned
// for carried-over codes and product subjects.
const historyWindow = 6

// QuestionAnalysis is the deterministic read of one user question. It
// drives retrieval tuning and the inheritance resolver; no LLM call is
// involved so analysis never fails.
type QuestionAnalysis struct {
	Question      string
	Codes         []string
	Intents       []Intent
	PrimaryIntent Intent
	Keywords      []string
	Country       string
	IsArabic      bool
	History       models.HistoryContext
}

// AnalyzerService classifies questions with rule tables instead of a
// model round-trip. Tables live in analyzer_rules.go.
type AnalyzerService struct {
	defaultCountry string
	logger         *zap.Logger
}

func NewAnalyzerService(defaultCountry string, logger *zap.Logger) *AnalyzerService {
	return &AnalyzerService{
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

// Analyze reads the question and recent history. Empty or garbage input
// yields a usable default analysis, never an error.
func (s *AnalyzerService) Analyze(question string, history []models.ChatTurn) QuestionAnalysis {
	lowered := strings.ToLower(question)

	analysis := QuestionAnalysis{
		Question:      question,
		Codes:         s.ExtractCodes(question),
		Keywords:      s.ExtractProductKeywords(question),
		Country:       s.detectCountry(lowered),
		IsArabic:      isMostlyArabic(question),
		PrimaryIntent: IntentInfo,
		History:       extractHistoryContext(history),
	}

	for _, rule := range intentRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(lowered, pattern) {
				analysis.Intents = append(analysis.Intents, rule.intent)
				break
			}
		}
	}
	if len(analysis.Intents) > 0 {
		analysis.PrimaryIntent = analysis.Intents[0]
	} else {
		analysis.Intents = []Intent{IntentInfo}
	}

	s.logger.Debug("question analyzed",
		zap.String("intent", string(analysis.PrimaryIntent)),
		zap.Strings("codes", analysis.Codes),
		zap.Strings("keywords", analysis.Keywords),
		zap.String("country", analysis.Country),
	)
	return analysis
}

// ExtractCodes returns normalized tariff codes mentioned in the text,
// in order of appearance, deduplicated. Digit groups that normalize to
// fewer than four digits are ignored as too ambiguous.
func (s *AnalyzerService) ExtractCodes(text string) []string {
	var codes []string
	seen := make(map[string]struct{})
	for _, match := range codePattern.FindAllString(text, -1) {
		normalized := hscode.Normalize(match)
		if !hscode.IsPlausible(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		codes = append(codes, normalized)
	}
	return codes
}

// ExtractProductKeywords returns the content-bearing tokens of the
// question: lowercased, stop words and domain boilerplate removed. A
// question made only of boilerplate yields an empty slice.
func (s *AnalyzerService) ExtractProductKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]struct{})
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		token = strings.Trim(token, "'-")
		if minTokenLen(token) {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

// minTokenLen reports whether a token is too short to carry meaning.
// Three letters keeps short product names like "riz" or "thé".
func minTokenLen(token string) bool {
	return len([]rune(token)) < 3
}

func (s *AnalyzerService) detectCountry(lowered string) string {
	for _, rule := range countryRules {
		if strings.Contains(lowered, rule.pattern) {
			return rule.iso
		}
	}
	return s.defaultCountry
}

func isArabicRune(r rune) bool {
	return r >= 0x0600 && r <= 0x06FF
}

// isMostlyArabic reports whether Arabic letters dominate the letter
// content of the text. Digits and punctuation are ignored.
func isMostlyArabic(text string) bool {
	var arabic, letters int
	for _, r := range text {
		if isArabicRune(r) {
			arabic++
			letters++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 0 && arabic*2 > letters
}

// extractHistoryContext scans the trailing turns of the conversation
// for tariff codes and product subjects so terse follow-ups ("et la
// TVA ?") keep querying the same product.
func extractHistoryContext(history []models.ChatTurn) models.HistoryContext {
	if len(history) == 0 {
		return models.HistoryContext{}
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	codeSet := make(map[string]struct{})
	productSet := make(map[string]struct{})
	for _, turn := range history {
		for _, match := range codePattern.FindAllString(turn.Content, -1) {
			if n := hscode.Normalize(match); hscode.IsPlausible(n) {
				codeSet[n] = struct{}{}
			}
		}
		for _, re := range productPatterns {
			for _, match := range re.FindAllString(turn.Content, -1) {
				productSet[strings.ToLower(match)] = struct{}{}
			}
		}
	}

	ctx := models.HistoryContext{
		Codes:    sortedKeys(codeSet),
		Keywords: sortedKeys(productSet),
	}
	if len(ctx.Codes) == 0 && len(ctx.Keywords) == 0 {
		return ctx
	}

	var parts []string
	if len(ctx.Codes) > 0 {
		formatted := make([]string, len(ctx.Codes))
		for i, c := range ctx.Codes {
			formatted[i] = hscode.Format(c)
		}
		parts = append(parts, "codes évoqués : "+strings.Join(formatted, ", "))
	}
	if len(ctx.Keywords) > 0 {
		parts = append(parts, "produits évoqués : "+strings.Join(ctx.Keywords, ", "))
	}
	ctx.Prefix = "Contexte de la conversation précédente (" + strings.Join(parts, " ; ") + ")"
	return ctx
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
