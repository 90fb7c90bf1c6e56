package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"douane-rag/internal/dto"
	"douane-rag/internal/models"
	"douane-rag/pkg/embedcache"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChatCompleter struct {
	mu            sync.Mutex
	answer        string
	err           error
	completeCalls int
	imageCalls    int
	lastPayload   string
}

func (f *fakeChatCompleter) Complete(_ context.Context, _, userPayload string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.lastPayload = userPayload
	return f.answer, f.err
}

func (f *fakeChatCompleter) AnalyzeImage(_ context.Context, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	return "Facture mentionnant des ordinateurs portables, code 8471.30.00.10", nil
}

type fakeDocumentGetter struct {
	doc *models.PDFDocument
}

func (f *fakeDocumentGetter) GetByID(_ context.Context, _ uuid.UUID) (*models.PDFDocument, error) {
	if f.doc == nil {
		return nil, ErrServiceUnavailable
	}
	return f.doc, nil
}

type chatFixture struct {
	svc       *ChatService
	llm       *fakeChatCompleter
	cacheRepo *fakeCacheStore
	tariffs   *fakeTariffStore
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	cfg := testRAGConfig()
	cfg.MaxPassages = 6
	cfg.PassageBudget = 8000
	logger := zap.NewNop()

	tariffs := &fakeTariffStore{rows: map[string]*models.TariffRow{
		"8471300010": {CodeHS: "8471300010", Description: "Ordinateurs portables", DDIRate: rate(2.5), VATRate: rate(20)},
	}}
	resolver := NewResolverService(tariffs, &fakeNoteStore{}, &fakeControlStore{}, logger)

	retriever := NewRetrieverService(&fakeEmbedder{}, embedcache.New(time.Minute),
		&fakeTariffSearcher{}, fakeHSCodeSearcher{}, &fakeLegalSearcher{},
		fakeDocumentSearcher{}, fakeKnowledgeSearcher{}, &fakeWatchSearcher{},
		&fakeNoteStore{}, &fakeControlStore{}, cfg, logger)

	cacheRepo := &fakeCacheStore{byHash: map[string]*models.CachedResponse{}}
	llm := &fakeChatCompleter{answer: "Le code **8471.30.00.10** est soumis à un taux de 2,5 %."}

	svc := NewChatService(
		NewAnalyzerService("MA", logger),
		resolver,
		retriever,
		NewScorerService(cfg, logger),
		NewRerankerService(&fakeToolCompleter{}, cfg, logger),
		NewPromptService(),
		NewValidatorService(&fakeArticleFinder{}, &fakeChapterFinder{}, logger),
		NewCacheService(cacheRepo, &fakeEmbedder{}, testCacheConfig(), logger),
		llm,
		&fakeDocumentGetter{},
		cfg,
		logger,
	)
	return &chatFixture{svc: svc, llm: llm, cacheRepo: cacheRepo, tariffs: tariffs}
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.Ask(context.Background(), &dto.ChatRequest{Question: "   "})

	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAskFullPipeline(t *testing.T) {
	f := newChatFixture(t)
	req := &dto.ChatRequest{Question: "Quel est le taux pour le code 8471.30.00.10 ?"}

	got, err := f.svc.Ask(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Equal(t, 1, f.llm.completeCalls)
	assert.Contains(t, got.ResponseText, "8471.30.00.10")
	require.NotEmpty(t, got.Citations)
	assert.Equal(t, models.MatchedByDirect, got.Citations[0].MatchedBy)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	assert.Positive(t, got.ContextSummaryCounts["tariffs"])
}

func TestAskServesCachedAnswer(t *testing.T) {
	f := newChatFixture(t)
	question := "Quel est le taux pour les ordinateurs ?"
	hash := HashQuestion(question)
	f.cacheRepo.byHash[hash] = &models.CachedResponse{
		QuestionHash: hash,
		Answer:       "Réponse en cache.",
		Confidence:   models.ConfidenceHigh,
	}

	got, err := f.svc.Ask(context.Background(), &dto.ChatRequest{Question: question})

	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, "Réponse en cache.", got.ResponseText)
	assert.Equal(t, 0, f.llm.completeCalls)
}

func TestAskImagesBypassCache(t *testing.T) {
	f := newChatFixture(t)
	question := "Quel est le taux pour les ordinateurs ?"
	hash := HashQuestion(question)
	f.cacheRepo.byHash[hash] = &models.CachedResponse{QuestionHash: hash, Answer: "Réponse en cache."}

	got, err := f.svc.Ask(context.Background(), &dto.ChatRequest{
		Question: question,
		Images:   []dto.ImageAttachment{{FileName: "facture.png", MimeType: "image/png", Data: "aGVsbG8="}},
	})

	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Equal(t, 1, f.llm.imageCalls)
	assert.Equal(t, 1, f.llm.completeCalls)
	assert.Contains(t, f.llm.lastPayload, "facture.png", "image analysis feeds the payload")
}

func TestAskLLMFailurePropagates(t *testing.T) {
	f := newChatFixture(t)
	f.llm.err = ErrServiceUnavailable

	_, err := f.svc.Ask(context.Background(), &dto.ChatRequest{Question: "Quel taux pour les ordinateurs ?"})

	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestAskPrecomputesDutyBreakdown(t *testing.T) {
	f := newChatFixture(t)
	req := &dto.ChatRequest{Question: "Combien de droits pour 10 000 DH de marchandises du code 8471.30.00.10 ?"}

	_, err := f.svc.Ask(context.Background(), req)

	require.NoError(t, err)
	assert.Contains(t, f.llm.lastPayload, "Calcul indicatif des droits")
	assert.Contains(t, f.llm.lastPayload, "10000.00")
	assert.Contains(t, f.llm.lastPayload, "2300.00")
}

func TestExtractCIFValue(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"pour 10 000 DH de marchandises", 10000, true},
		{"valeur de 2.500,50 EUR", 2500.50, true},
		{"environ 1500 dirhams", 1500, true},
		{"sans montant précis", 0, false},
	}
	for _, tt := range tests {
		got, ok := extractCIFValue(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.text)
		}
	}
}
