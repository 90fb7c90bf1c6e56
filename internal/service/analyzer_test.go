package service

import (
	"testing"

	"douane-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAnalyzer() *AnalyzerService {
	return NewAnalyzerService("MA", zap.NewNop())
}

func TestAnalyzePrimaryIntent(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     Intent
	}{
		{"classification", "Quel est le code SH pour des smartphones ?", IntentClassify},
		{"calculation", "Combien de droits de douane pour une voiture ?", IntentCalculate},
		{"origin", "Le certificat d'origine est-il requis depuis la Turquie ?", IntentOrigin},
		{"control", "L'importation de médicaments est-elle interdite ?", IntentControl},
		{"procedure", "Quelle est la procédure de dédouanement ?", IntentProcedure},
		{"legal", "Que dit l'article 42 du code des douanes ?", IntentLegal},
		{"default info", "Bonjour", IntentInfo},
		{"arabic calculation", "كم تبلغ رسوم استيراد هاتف؟", IntentCalculate},
	}

	a := newTestAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.question, nil)
			assert.Equal(t, tt.want, got.PrimaryIntent)
			assert.NotEmpty(t, got.Intents)
		})
	}
}

func TestAnalyzeEmptyQuestion(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("", nil)

	assert.Equal(t, IntentInfo, got.PrimaryIntent)
	assert.Empty(t, got.Codes)
	assert.Empty(t, got.Keywords)
	assert.Equal(t, "MA", got.Country)
	assert.False(t, got.IsArabic)
}

func TestExtractCodes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"dotted", "Le code 8471.30.00.10 est correct", []string{"8471300010"}},
		{"spaced", "position 8471 30", []string{"847130"}},
		{"bare digits", "classé sous 847130", []string{"847130"}},
		{"deduplicated", "8471.30 puis 847130 encore", []string{"847130"}},
		{"multiple codes", "comparer 8471.30 et 8517.12", []string{"847130", "851712"}},
		{"chapter zero rejected", "le code 0000.00.00.00", nil},
		{"too short rejected", "il y a 42 raisons", nil},
		{"no digits", "aucune mention", nil},
	}

	a := newTestAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ExtractCodes(tt.text))
		})
	}
}

func TestExtractProductKeywordsBoilerplateOnly(t *testing.T) {
	a := newTestAnalyzer()

	got := a.ExtractProductKeywords("Quel est le taux de droit pour le code SH ?")

	assert.Empty(t, got)
}

func TestExtractProductKeywords(t *testing.T) {
	a := newTestAnalyzer()

	got := a.ExtractProductKeywords("Quel est le taux pour des smartphones reconditionnés ?")

	assert.Equal(t, []string{"smartphones", "reconditionnés"}, got)
}

func TestExtractProductKeywordsShortProductNames(t *testing.T) {
	a := newTestAnalyzer()

	got := a.ExtractProductKeywords("droits sur le riz importé")

	assert.Contains(t, got, "riz")
	assert.Contains(t, got, "importé")
}

func TestDetectCountry(t *testing.T) {
	a := newTestAnalyzer()

	assert.Equal(t, "MA", a.Analyze("taux pour des chaussures", nil).Country)
	assert.Equal(t, "FR", a.Analyze("importer en France des chaussures", nil).Country)
	assert.Equal(t, "CN", a.Analyze("marchandises venant de Chine", nil).Country)
}

func TestIsMostlyArabic(t *testing.T) {
	assert.True(t, isMostlyArabic("ما هي رسوم استيراد الهواتف؟"))
	assert.False(t, isMostlyArabic("Quel est le taux de TVA ?"))
	assert.False(t, isMostlyArabic(""))
	assert.False(t, isMostlyArabic("12345"))
}

func TestHistoryContext(t *testing.T) {
	history := []models.ChatTurn{
		{Role: "user", Content: "Quel code pour des smartphones ?"},
		{Role: "assistant", Content: "Le code 8517.13.00.00 correspond aux smartphones."},
		{Role: "user", Content: "Et la TVA ?"},
	}

	got := extractHistoryContext(history)

	assert.Equal(t, []string{"8517130000"}, got.Codes)
	assert.Contains(t, got.Keywords, "smartphones")
	require.NotEmpty(t, got.Prefix)
	assert.Contains(t, got.Prefix, "8517.13.00.00")
}

func TestHistoryContextWindow(t *testing.T) {
	history := make([]models.ChatTurn, 0, 8)
	history = append(history, models.ChatTurn{Role: "user", Content: "code 0101.21 pour les chevaux"})
	for i := 0; i < 7; i++ {
		history = append(history, models.ChatTurn{Role: "assistant", Content: "Pouvez-vous préciser ?"})
	}

	got := extractHistoryContext(history)

	assert.Empty(t, got.Codes)
	assert.Empty(t, got.Prefix)
}

func TestHistoryContextEmpty(t *testing.T) {
	got := extractHistoryContext(nil)

	assert.Empty(t, got.Codes)
	assert.Empty(t, got.Keywords)
	assert.Empty(t, got.Prefix)
}
