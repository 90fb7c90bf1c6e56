package service

import (
	"context"
	"strings"
	"testing"

	"douane-rag/internal/models"
	"douane-rag/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractCodesFromResponse(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{"no digits", "Aucun code ne correspond à cette marchandise.", nil},
		{"bold code", "Le code applicable est **8471.30.00.10** pour ce produit.", []string{"8471300010"}},
		{"bold chapter zero", "Le code **0000.00.00.00** n'existe pas.", nil},
		{"labeled code", "Code SH : 8471.30 pour les portables.", []string{"847130"}},
		{"dotted prose", "La position 8517.12 couvre les téléphones.", []string{"851712"}},
		{"bare digits", "Classement retenu 8471300010 sans mise en forme.", []string{"8471300010"}},
		{"bold wins over prose", "Voir **8471.30** plutôt que 8517.12.", []string{"847130"}},
		{"deduplication", "**8471.30** et encore **8471.30**", []string{"847130"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCodesFromResponse(tt.answer))
		})
	}
}

func TestExtractArticleReferences(t *testing.T) {
	answer := "Selon l'article 15 et l'art. 15 bis du code, ainsi que المادة 12. Voir aussi Article 15."

	got := ExtractArticleReferences(answer)

	assert.Equal(t, []string{"15", "15 bis", "12"}, got)
}

type fakeArticleFinder struct {
	chunks       []models.LegalChunk
	err          error
	canonicalURL string
}

func (f *fakeArticleFinder) GetByArticleNumbers(_ context.Context, _ []string) ([]models.LegalChunk, error) {
	return f.chunks, f.err
}

func (f *fakeArticleFinder) ResolveDownloadURL(_ context.Context, _ uuid.UUID) (string, error) {
	return "", repository.ErrNotFound
}

func (f *fakeArticleFinder) FindCanonicalCodeDocument(_ context.Context) (*models.PDFDocument, error) {
	if f.canonicalURL == "" {
		return nil, repository.ErrNotFound
	}
	return &models.PDFDocument{ID: uuid.New(), Title: "Code des douanes", URL: &f.canonicalURL}, nil
}

type fakeChapterFinder struct {
	doc   *models.PDFDocument
	calls int
}

func (f *fakeChapterFinder) FindChapterPDF(_ context.Context, _, _ string) (*models.PDFDocument, error) {
	f.calls++
	if f.doc == nil {
		return nil, repository.ErrNotFound
	}
	return f.doc, nil
}

func newTestValidator(legal *fakeArticleFinder, documents *fakeChapterFinder) *ValidatorService {
	if legal == nil {
		legal = &fakeArticleFinder{}
	}
	if documents == nil {
		documents = &fakeChapterFinder{}
	}
	return NewValidatorService(legal, documents, zap.NewNop())
}

func TestValidateResolvedCodeIsDirect(t *testing.T) {
	v := newTestValidator(nil, nil)
	ragCtx := &models.RAGContext{
		Tariffs: []models.EffectiveTariff{{Code: "8471300010", Found: true}},
	}

	result, answer := v.Validate(context.Background(), "MA", "Le code **8471.30.00.10** s'applique.", ragCtx)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, models.MatchedByDirect, result.Sources[0].MatchedBy)
	assert.Equal(t, models.ConfidenceHigh, result.Sources[0].Confidence)
	assert.Equal(t, "8471.30.00.10", result.Sources[0].Reference)
	assert.True(t, result.HasEvidence)
	assert.Equal(t, models.ConfidenceHigh, result.Confidence)
	assert.NotContains(t, answer, "source vérifiée")
}

func TestValidateRetrievedRowIsHSCodeMatch(t *testing.T) {
	v := newTestValidator(nil, nil)
	ragCtx := &models.RAGContext{
		TariffRows: []models.TariffRow{{CodeHS: "851712", Description: "Téléphones intelligents"}},
	}

	result, _ := v.Validate(context.Background(), "MA", "La position **8517.12** correspond.", ragCtx)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, models.MatchedByHSCode, result.Sources[0].MatchedBy)
	assert.Equal(t, "Téléphones intelligents", result.Sources[0].Title)
}

func TestValidateChapterMatchAgainstRetrievedPDF(t *testing.T) {
	url := "https://douane.gov.ma/tarif/ch84.pdf"
	v := newTestValidator(nil, nil)
	ragCtx := &models.RAGContext{
		PDFs: []models.PDFDocument{
			{ID: uuid.New(), Title: "Tarif chapitre 84", Chapter: "84", URL: &url},
		},
	}

	result, _ := v.Validate(context.Background(), "MA", "Le code **8471.41.00.00** semble adapté.", ragCtx)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, models.SourcePDF, result.Sources[0].Type)
	assert.Equal(t, models.MatchedByChapter, result.Sources[0].MatchedBy)
	assert.Equal(t, models.ConfidenceMedium, result.Sources[0].Confidence)
	require.NotNil(t, result.Sources[0].DownloadURL)
	assert.Equal(t, url, *result.Sources[0].DownloadURL)
}

func TestValidateChapterMatchAgainstRetrievedRows(t *testing.T) {
	v := newTestValidator(nil, nil)
	ragCtx := &models.RAGContext{
		TariffRows: []models.TariffRow{{CodeHS: "8471300010", Description: "Ordinateurs portables"}},
	}

	result, _ := v.Validate(context.Background(), "MA", "Le code **8471.41.00.00** semble adapté.", ragCtx)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, models.SourceTariff, result.Sources[0].Type)
	assert.Equal(t, models.MatchedByChapter, result.Sources[0].MatchedBy)
	assert.Equal(t, models.ConfidenceMedium, result.Sources[0].Confidence)
}

func TestValidateKeywordOverlapNeedsChapterAgreement(t *testing.T) {
	v := newTestValidator(nil, nil)
	ragCtx := &models.RAGContext{
		Passages: []models.ScoredPassage{
			{
				Text:            "Les machines automatiques de traitement de l'information du 8471 sont exonérées.",
				MatchedKeywords: []string{"ordinateur"},
				MatchedCodes:    []string{"8471300010"},
				Source:          models.SourceKnowledge,
				SourceID:        "kd-1",
				SourceTitle:     "Fiche informatique",
			},
		},
	}

	result, _ := v.Validate(context.Background(), "MA", "Le code **8471.41.00.00** semble adapté.", ragCtx)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, models.MatchedByKeyword, result.Sources[0].MatchedBy)
	assert.Equal(t, models.ConfidenceLow, result.Sources[0].Confidence)
	assert.Equal(t, "Fiche informatique", result.Sources[0].Title)

	// Same passage, different chapter cited: keyword overlap alone is
	// not evidence.
	other, answer := v.Validate(context.Background(), "MA", "Le code **9903.81.00.00** semble adapté.", ragCtx)
	assert.Empty(t, other.Sources)
	assert.False(t, other.HasEvidence)
	assert.Contains(t, answer, "source vérifiée")
}

func TestValidateFabricatedCodeIgnoresStoredChapterPDF(t *testing.T) {
	url := "https://douane.gov.ma/tarif/ch99.pdf"
	documents := &fakeChapterFinder{doc: &models.PDFDocument{ID: uuid.New(), Title: "Tarif chapitre 99", URL: &url}}
	v := newTestValidator(nil, documents)

	result, answer := v.Validate(context.Background(), "MA", "Le code **9903.81.00.00** s'applique.", &models.RAGContext{})

	assert.Empty(t, result.Sources)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "9903810000", result.Rejected[0].ID)
	assert.False(t, result.HasEvidence)
	assert.Contains(t, answer, "source vérifiée")
}

func TestValidateBackfillsURLOntoResolvedTariff(t *testing.T) {
	url := "https://douane.gov.ma/tarif/ch84.pdf"
	documents := &fakeChapterFinder{doc: &models.PDFDocument{ID: uuid.New(), Title: "Tarif chapitre 84", URL: &url}}
	v := newTestValidator(nil, documents)
	ragCtx := &models.RAGContext{
		Tariffs: []models.EffectiveTariff{{Code: "8471300010", Found: true}},
	}

	result, _ := v.Validate(context.Background(), "MA", "Le code **8471.30.00.10** s'applique.", ragCtx)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, models.MatchedByDirect, result.Sources[0].MatchedBy)
	require.NotNil(t, result.Sources[0].DownloadURL)
	assert.Equal(t, url, *result.Sources[0].DownloadURL)
	assert.Equal(t, 1, documents.calls)
}

func TestValidateUnknownCodeRejectedWithDisclaimer(t *testing.T) {
	v := newTestValidator(nil, nil)

	result, answer := v.Validate(context.Background(), "MA", "Le code **9999.99.99.99** s'applique.", &models.RAGContext{})

	assert.Empty(t, result.Sources)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "9999999999", result.Rejected[0].ID)
	assert.False(t, result.HasEvidence)
	assert.Equal(t, models.ConfidenceLow, result.Confidence)
	assert.True(t, strings.Contains(answer, "source vérifiée"))
}

func TestValidateArticleWithCanonicalFallback(t *testing.T) {
	legal := &fakeArticleFinder{
		chunks: []models.LegalChunk{
			{ID: uuid.New(), ArticleNumber: "15", SourceTitle: "Code des douanes et impôts indirects"},
		},
		canonicalURL: "https://douane.gov.ma/code.pdf",
	}
	v := newTestValidator(legal, nil)

	result, _ := v.Validate(context.Background(), "MA", "L'article 15 prévoit cette exonération.", &models.RAGContext{})

	require.Len(t, result.Sources, 1)
	src := result.Sources[0]
	assert.Equal(t, models.SourceLegal, src.Type)
	assert.Equal(t, "Article 15", src.Reference)
	assert.Equal(t, models.ConfidenceHigh, src.Confidence)
	require.NotNil(t, src.DownloadURL)
	assert.Equal(t, "https://douane.gov.ma/code.pdf", *src.DownloadURL)
}

func TestValidateUnknownArticleRejected(t *testing.T) {
	v := newTestValidator(&fakeArticleFinder{}, nil)

	result, _ := v.Validate(context.Background(), "MA", "L'article 999 ne figure nulle part.", &models.RAGContext{})

	assert.Empty(t, result.Sources)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "999", result.Rejected[0].ID)
}

func TestValidateSourcesSortedAndDeduped(t *testing.T) {
	url := "https://douane.gov.ma/tarif/ch84.pdf"
	v := newTestValidator(nil, nil)
	ragCtx := &models.RAGContext{
		Tariffs: []models.EffectiveTariff{{Code: "851712", Found: true}},
		PDFs: []models.PDFDocument{
			{ID: uuid.New(), Title: "Tarif chapitre 84", Chapter: "84", URL: &url},
		},
	}

	result, _ := v.Validate(context.Background(), "MA", "Voir **8517.12**, **8517.12** et **8471.41**.", ragCtx)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, models.ConfidenceHigh, result.Sources[0].Confidence, "high-confidence citations come first")
	assert.Equal(t, models.ConfidenceMedium, result.Sources[1].Confidence)
}
