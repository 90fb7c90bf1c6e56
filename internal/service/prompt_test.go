package service

import (
	"strings"
	"testing"

	"douane-rag/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildUserPayloadOmitsEmptySections(t *testing.T) {
	p := NewPromptService()
	ragCtx := &models.RAGContext{Question: "Quel est le taux pour les ordinateurs ?"}

	got := p.BuildUserPayload(ragCtx)

	assert.NotContains(t, got, "## Tarifs applicables")
	assert.NotContains(t, got, "## Extraits pertinents")
	assert.Contains(t, got, "## Question")
	assert.Contains(t, got, "Quel est le taux pour les ordinateurs ?")
}

func TestBuildUserPayloadRendersTariff(t *testing.T) {
	p := NewPromptService()
	ragCtx := &models.RAGContext{
		Question: "taux pour 8471.30 ?",
		Tariffs: []models.EffectiveTariff{{
			Code:              "847130",
			Found:             true,
			DutyRate:          rate(2.5),
			VATRate:           rate(20),
			RateSource:        models.RateSourceInherited,
			ChildrenConsulted: 4,
			LegalNotes:        []string{"[84] Note de chapitre."},
			Controls:          []models.Control{{Type: "licence", Authority: "Ministère du Commerce", Inherited: true}},
		}},
	}

	got := p.BuildUserPayload(ragCtx)

	assert.Contains(t, got, "### Code 8471.30")
	assert.Contains(t, got, "2.50% (hérité, 4 sous-positions concordantes)")
	assert.Contains(t, got, "Taux TVA : 20.00%")
	assert.Contains(t, got, "[84] Note de chapitre.")
	assert.Contains(t, got, "licence (Ministère du Commerce) [hérité de la position]")
}

func TestBuildUserPayloadRendersRange(t *testing.T) {
	p := NewPromptService()
	ragCtx := &models.RAGContext{
		Question: "taux pour 8471 ?",
		Tariffs: []models.EffectiveTariff{{
			Code:              "8471",
			Found:             true,
			DutyRateMin:       2.5,
			DutyRateMax:       25,
			RateSource:        models.RateSourceRange,
			ChildrenConsulted: 12,
		}},
	}

	got := p.BuildUserPayload(ragCtx)

	assert.Contains(t, got, "de 2.50% à 25.00% selon la sous-position")
}

func TestBuildUserPayloadUsesPassagesNotRawText(t *testing.T) {
	p := NewPromptService()
	ragCtx := &models.RAGContext{
		Question: "contrôles sur les médicaments ?",
		Legal: []models.LegalChunk{
			{Text: "TEXTE_BRUT_COMPLET_DU_CHUNK", SourceTitle: "Code des douanes"},
		},
		Passages: []models.ScoredPassage{
			{Text: "Extrait sélectionné sur les autorisations.", Source: models.SourceLegal, SourceTitle: "Code des douanes"},
		},
	}

	got := p.BuildUserPayload(ragCtx)

	assert.NotContains(t, got, "TEXTE_BRUT_COMPLET_DU_CHUNK")
	assert.Contains(t, got, "Extrait sélectionné sur les autorisations.")
	assert.Contains(t, got, "texte juridique")
}

func TestBuildUserPayloadPreservesURLs(t *testing.T) {
	p := NewPromptService()
	url := "https://douane.gov.ma/veille?id=42&lang=fr"
	ragCtx := &models.RAGContext{
		Question: "nouveautés ?",
		Watch:    []models.WatchDocument{{Title: "Circulaire récente", Importance: "high", URL: &url}},
	}

	got := p.BuildUserPayload(ragCtx)

	assert.Contains(t, got, url)
}

func TestBuildSystemPromptIntentVariants(t *testing.T) {
	p := NewPromptService()

	base := p.BuildSystemPrompt(&QuestionAnalysis{PrimaryIntent: IntentInfo})
	classify := p.BuildSystemPrompt(&QuestionAnalysis{PrimaryIntent: IntentClassify})
	calculate := p.BuildSystemPrompt(&QuestionAnalysis{PrimaryIntent: IntentCalculate})

	assert.Contains(t, base, "base taxable = CIF + droit de douane")
	assert.Contains(t, classify, "classement")
	assert.Contains(t, calculate, "détaille chaque étape")
	assert.True(t, strings.HasPrefix(classify, base[:100]), "intent variants extend the shared rules")
}
