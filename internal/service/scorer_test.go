package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"douane-rag/internal/models"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitIntoParagraphs(t *testing.T) {
	long := strings.Repeat("Les machines automatiques de traitement de l'information. ", 7)
	text := long + "\n\nOK\n\n" + long

	got := SplitIntoParagraphs(text)

	require.Len(t, got, 2, "fragments under 30 characters are dropped")
	for _, p := range got {
		assert.GreaterOrEqual(t, len(p), targetParagraphChars)
	}
}

func TestSplitIntoParagraphsMergesShortOnes(t *testing.T) {
	short := "Les droits applicables varient selon le chapitre."
	text := short + "\n\n" + short + "\n\n" + short + "\n\n" + short + "\n\n" + short + "\n\n" + short + "\n\n" + short

	got := SplitIntoParagraphs(text)

	require.NotEmpty(t, got)
	assert.GreaterOrEqual(t, len(got[0]), targetParagraphChars)
}

func TestSplitIntoParagraphsEmpty(t *testing.T) {
	assert.Empty(t, SplitIntoParagraphs(""))
	assert.Empty(t, SplitIntoParagraphs("court"))
}

func TestScorePassageExactCodeBeatsChapter(t *testing.T) {
	exact := ScorePassage(
		"Le code 8471.30.00.10 désigne les ordinateurs portables de moins de 10 kg.",
		[]string{"8471300010"}, nil)
	chapter := ScorePassage(
		"Le chapitre couvre notamment la position 8414.51 relative aux ventilateurs.",
		[]string{"8471300010"}, nil)

	assert.Greater(t, exact.Score, chapter.Score)
	assert.Equal(t, []string{"8471300010"}, exact.MatchedCodes)
}

func TestScorePassageHeadingPrefix(t *testing.T) {
	got := ScorePassage(
		"La position 8471.41 regroupe les autres machines automatiques de traitement.",
		[]string{"8471300010"}, nil)

	assert.Equal(t, weightHeading, got.Score)
}

func TestScorePassageKeywordLogSaturation(t *testing.T) {
	once := ScorePassage("Les smartphones importés sont soumis au régime commun des marchandises.", nil, []string{"smartphones"})
	many := ScorePassage(strings.Repeat("smartphones ", 10), nil, []string{"smartphones"})

	assert.Greater(t, once.Score, 0.0)
	assert.Greater(t, many.Score, once.Score)
	assert.Less(t, many.Score, once.Score*4, "repetition saturates instead of scaling linearly")
}

func TestScorePassageRegulatoryBonus(t *testing.T) {
	plain := ScorePassage("Les marchandises de cette catégorie sont couramment échangées sur le marché.", nil, nil)
	regulatory := ScorePassage("L'importation de ces marchandises requiert une autorisation préalable des services.", nil, nil)

	assert.Equal(t, 0.0, plain.Score)
	assert.Equal(t, weightRegulatory, regulatory.Score)
}

func TestScorePassageLengthPenalty(t *testing.T) {
	base := "Le code 8471.30 figure dans la liste des marchandises concernées. "
	short := ScorePassage(base, []string{"847130"}, nil)
	long := ScorePassage(base+strings.Repeat("Texte de remplissage sans pertinence particulière. ", 60), []string{"847130"}, nil)

	assert.Greater(t, short.Score, long.Score)
}

func TestExtractTopPassagesBudget(t *testing.T) {
	cfg := testRAGConfig()
	cfg.MaxPassages = 2
	cfg.PassageBudget = 900
	scorer := NewScorerService(cfg, zap.NewNop())

	paragraph := "Le code 8471.30.00.10 vise les ordinateurs portables. " + strings.Repeat("Complément descriptif. ", 15)
	ragCtx := &models.RAGContext{
		Legal: []models.LegalChunk{
			{ID: uuid.New(), SourceTitle: "Code des douanes", Text: paragraph + "\n\n" + paragraph + "\n\n" + paragraph},
		},
	}

	got := scorer.ExtractTopPassages(ragCtx, []string{"8471300010"}, nil)

	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2)
	total := 0
	for _, p := range got {
		total += len(p.Text)
	}
	assert.LessOrEqual(t, total, 900)
	last := got[len(got)-1]
	if last.Truncated {
		assert.GreaterOrEqual(t, len(last.Text), targetParagraphChars)
	}
}

func TestExtractTopPassagesTruncatesOnRuneBoundary(t *testing.T) {
	cfg := testRAGConfig()
	cfg.MaxPassages = 1
	cfg.PassageBudget = 400
	scorer := NewScorerService(cfg, zap.NewNop())

	text := "الكود 8471300010 يخص الحواسيب المحمولة المستوردة. " +
		strings.Repeat("ترخيص الاستيراد مطلوب لهذه البضائع قبل التخليص الجمركي. ", 20)
	ragCtx := &models.RAGContext{
		Legal: []models.LegalChunk{{ID: uuid.New(), SourceTitle: "مدونة الجمارك", Text: text}},
	}

	got := scorer.ExtractTopPassages(ragCtx, []string{"8471300010"}, nil)

	require.Len(t, got, 1)
	assert.True(t, got[0].Truncated)
	assert.LessOrEqual(t, len(got[0].Text), 400)
	assert.True(t, utf8.ValidString(got[0].Text), "truncation must not split a rune")
}

func TestTruncateAtRune(t *testing.T) {
	s := "ممنوع"

	cut := truncateAtRune(s, 3)

	assert.Equal(t, "م", cut)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, s, truncateAtRune(s, len(s)))
}

func TestExtractTopPassagesSkipsOversizedLowScores(t *testing.T) {
	cfg := testRAGConfig()
	cfg.MaxPassages = 2
	cfg.PassageBudget = 500
	scorer := NewScorerService(cfg, zap.NewNop())

	oversized := strings.Repeat("Une autorisation est exigée pour ces opérations d'importation. ", 12)
	fitting := "Le chapitre 84 mentionne la position 8471.30 applicable aux ordinateurs."
	ragCtx := &models.RAGContext{
		Legal: []models.LegalChunk{
			{ID: uuid.New(), SourceTitle: "Circulaire", Text: oversized},
			{ID: uuid.New(), SourceTitle: "Code des douanes", Text: fitting},
		},
	}

	got := scorer.ExtractTopPassages(ragCtx, []string{"847130"}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, fitting, got[0].Text)
	assert.False(t, got[0].Truncated, "a low-scoring oversized passage is skipped, not truncated in")
}

func TestExtractTopPassagesSkipsZeroScores(t *testing.T) {
	scorer := NewScorerService(testRAGConfig(), zap.NewNop())
	ragCtx := &models.RAGContext{
		Knowledge: []models.KnowledgeDoc{
			{ID: uuid.New(), Title: "Hors sujet", Content: strings.Repeat("Contenu sans rapport avec la question posée. ", 10)},
		},
	}

	got := scorer.ExtractTopPassages(ragCtx, []string{"847130"}, []string{"smartphones"})

	assert.Empty(t, got)
}

type fakeToolCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeToolCompleter) CompleteWithTool(_ context.Context, _, _ string, _ openai.Tool) (string, error) {
	f.calls++
	return f.response, f.err
}

func rerankFixture(n int) []models.ScoredPassage {
	passages := make([]models.ScoredPassage, n)
	for i := range passages {
		passages[i] = models.ScoredPassage{Text: strings.Repeat("p", i+1), Score: float64(n - i), Source: models.SourceLegal}
	}
	return passages
}

func newTestReranker(llm toolCompleter) *RerankerService {
	cfg := testRAGConfig()
	cfg.RerankerEnabled = true
	return NewRerankerService(llm, cfg, zap.NewNop())
}

func TestRerankReordersByModelScores(t *testing.T) {
	llm := &fakeToolCompleter{response: `{"scores":[{"index":0,"score":2},{"index":1,"score":9},{"index":2,"score":5},{"index":3,"score":1}]}`}
	r := newTestReranker(llm)
	passages := rerankFixture(4)

	got := r.Rerank(context.Background(), "question", passages)

	require.Len(t, got, 4)
	assert.Equal(t, passages[1].Text, got[0].Text)
	assert.Equal(t, passages[2].Text, got[1].Text)
	assert.Equal(t, passages[0].Text, got[2].Text)
}

func TestRerankSkipsSmallSets(t *testing.T) {
	llm := &fakeToolCompleter{}
	r := newTestReranker(llm)
	passages := rerankFixture(3)

	got := r.Rerank(context.Background(), "question", passages)

	assert.Equal(t, passages, got)
	assert.Equal(t, 0, llm.calls)
}

func TestRerankFallsBackOnError(t *testing.T) {
	llm := &fakeToolCompleter{err: errors.New("timeout")}
	r := newTestReranker(llm)
	passages := rerankFixture(5)

	got := r.Rerank(context.Background(), "question", passages)

	assert.Equal(t, passages, got)
}

func TestRerankFallsBackOnMalformedOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "je ne peux pas évaluer"},
		{"out of range index", `{"scores":[{"index":7,"score":5}]}`},
		{"out of range score", `{"scores":[{"index":0,"score":42}]}`},
		{"partial coverage", `{"scores":[{"index":0,"score":5}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReranker(&fakeToolCompleter{response: tt.response})
			passages := rerankFixture(4)

			got := r.Rerank(context.Background(), "question", passages)

			assert.Equal(t, passages, got)
		})
	}
}

func TestRerankDisabled(t *testing.T) {
	llm := &fakeToolCompleter{}
	cfg := testRAGConfig()
	cfg.RerankerEnabled = false
	r := NewRerankerService(llm, cfg, zap.NewNop())

	got := r.Rerank(context.Background(), "question", rerankFixture(6))

	assert.Len(t, got, 6)
	assert.Equal(t, 0, llm.calls)
}
