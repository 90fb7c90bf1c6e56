package service

import (
	"fmt"
	"strings"

	"douane-rag/internal/hscode"
	"douane-rag/internal/models"
)

// PromptService assembles the system prompt and the evidence payload
// fed to the answer model. Pure templating: it never calls out, never
// filters evidence and never rewrites URLs.
type PromptService struct{}

func NewPromptService() *PromptService {
	return &PromptService{}
}

const answerRules = `Tu es un conseiller douanier expert. Tu réponds aux questions sur les
tarifs, le classement, les contrôles et les procédures d'importation.

Règles :
- Réponds dans la langue de la question (français ou arabe).
- Appuie chaque affirmation sur les éléments fournis ; n'invente jamais
  de code tarifaire, de taux ni de référence d'article.
- Si les éléments fournis ne suffisent pas, dis-le explicitement.
- Reproduis les URLs exactement telles qu'elles sont fournies.
- Mets les codes tarifaires en gras au format pointé, ex. **8471.30.00.10**.

Calcul des droits d'importation sur une valeur CIF :
- droit de douane = CIF x taux DDI
- base taxable = CIF + droit de douane
- TVA = base taxable x taux TVA
- total des droits = droit de douane + TVA
- coût total = CIF + total des droits
Arrondis chaque montant à 2 décimales.`

// BuildSystemPrompt returns the behavioral rules, adjusted to the
// question intent.
func (s *PromptService) BuildSystemPrompt(analysis *QuestionAnalysis) string {
	prompt := answerRules
	switch analysis.PrimaryIntent {
	case IntentClassify:
		prompt += "\n\nLa question porte sur le classement : propose le ou les codes les plus probables et indique ton degré de certitude."
	case IntentCalculate:
		prompt += "\n\nLa question porte sur un calcul de droits : détaille chaque étape du calcul."
	case IntentControl:
		prompt += "\n\nLa question porte sur les contrôles : précise les autorisations requises et l'autorité compétente."
	case IntentLegal:
		prompt += "\n\nLa question porte sur la réglementation : cite les articles pertinents avec leur numéro."
	}
	return prompt
}

// BuildUserPayload renders the gathered evidence as labeled sections,
// omitting empty ones. Raw document text never appears here; only the
// budgeted passages do.
func (s *PromptService) BuildUserPayload(ragCtx *models.RAGContext) string {
	var b strings.Builder

	if ragCtx.HistoryContext != "" {
		b.WriteString(ragCtx.HistoryContext)
		b.WriteString("\n\n")
	}

	if len(ragCtx.Tariffs) > 0 {
		b.WriteString("## Tarifs applicables\n")
		for i := range ragCtx.Tariffs {
			b.WriteString(formatEffectiveTariff(&ragCtx.Tariffs[i]))
		}
		b.WriteString("\n")
	}

	if len(ragCtx.HSCodes) > 0 {
		b.WriteString("## Codes de nomenclature proches\n")
		for _, c := range ragCtx.HSCodes {
			fmt.Fprintf(&b, "- %s : %s\n", hscode.Format(c.Code), c.Description)
		}
		b.WriteString("\n")
	}

	if len(ragCtx.TariffRows) > 0 {
		b.WriteString("## Lignes tarifaires candidates\n")
		for _, row := range ragCtx.TariffRows {
			fmt.Fprintf(&b, "- %s : %s", hscode.Format(row.CodeHS), row.Description)
			if row.DDIRate != nil {
				fmt.Fprintf(&b, " (DDI %.2f%%", *row.DDIRate)
				if row.VATRate != nil {
					fmt.Fprintf(&b, ", TVA %.2f%%", *row.VATRate)
				}
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(ragCtx.Controls) > 0 {
		b.WriteString("## Contrôles réglementaires\n")
		for _, c := range ragCtx.Controls {
			fmt.Fprintf(&b, "- %s : %s (%s)\n", hscode.Format(c.CodeHS), c.ControlType, c.Authority)
		}
		b.WriteString("\n")
	}

	if len(ragCtx.Passages) > 0 {
		b.WriteString("## Extraits pertinents\n")
		for i, p := range ragCtx.Passages {
			fmt.Fprintf(&b, "\n[Extrait %d, source : %s", i+1, sourceLabel(p.Source))
			if p.SourceTitle != "" {
				fmt.Fprintf(&b, ", %s", p.SourceTitle)
			}
			b.WriteString("]\n")
			b.WriteString(p.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(ragCtx.Watch) > 0 {
		b.WriteString("## Alertes de veille\n")
		for _, w := range ragCtx.Watch {
			fmt.Fprintf(&b, "- [%s] %s", w.Importance, w.Title)
			if w.URL != nil {
				fmt.Fprintf(&b, " (%s)", *w.URL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(ragCtx.DocumentExtracts) > 0 {
		b.WriteString("## Documents fournis par l'utilisateur\n")
		for _, extract := range ragCtx.DocumentExtracts {
			b.WriteString(extract)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("## Question\n")
	b.WriteString(ragCtx.Question)
	return b.String()
}

// FormatDutyBreakdown renders a precomputed cost calculation for the
// payload so the model restates it instead of doing arithmetic.
func FormatDutyBreakdown(d *models.DutyBreakdown) string {
	var b strings.Builder
	b.WriteString("## Calcul indicatif des droits\n")
	fmt.Fprintf(&b, "- Valeur CIF : %.2f\n", d.CIFValue)
	fmt.Fprintf(&b, "- Droit de douane (%.2f%%) : %.2f\n", d.DutyRate, d.DutyAmount)
	fmt.Fprintf(&b, "- Base taxable : %.2f\n", d.TaxableBase)
	fmt.Fprintf(&b, "- TVA (%.2f%%) : %.2f\n", d.VATRate, d.VATAmount)
	fmt.Fprintf(&b, "- Total des droits et taxes : %.2f\n", d.TotalDuties)
	fmt.Fprintf(&b, "- Coût total à l'importation : %.2f\n", d.TotalCost)
	return b.String()
}

func formatEffectiveTariff(t *models.EffectiveTariff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Code %s\n", hscode.Format(t.Code))
	if t.Description != "" {
		fmt.Fprintf(&b, "Désignation : %s\n", t.Description)
	}

	switch t.RateSource {
	case models.RateSourceDirect:
		fmt.Fprintf(&b, "Taux DDI : %.2f%% (ligne tarifaire directe)\n", *t.DutyRate)
	case models.RateSourceInherited:
		fmt.Fprintf(&b, "Taux DDI : %.2f%% (hérité, %d sous-positions concordantes)\n", *t.DutyRate, t.ChildrenConsulted)
	case models.RateSourceRange:
		fmt.Fprintf(&b, "Taux DDI : de %.2f%% à %.2f%% selon la sous-position (%d sous-positions examinées)\n",
			t.DutyRateMin, t.DutyRateMax, t.ChildrenConsulted)
	default:
		b.WriteString("Taux DDI : introuvable dans le tarif\n")
	}
	if t.VATRate != nil {
		fmt.Fprintf(&b, "Taux TVA : %.2f%%\n", *t.VATRate)
	}

	if t.Prohibited {
		b.WriteString("ATTENTION : importation prohibée.\n")
	} else if t.HasChildrenProhibited {
		b.WriteString("ATTENTION : certaines sous-positions sont prohibées.\n")
	}
	if t.Restricted {
		b.WriteString("Importation soumise à restriction.\n")
	} else if t.HasChildrenRestricted {
		b.WriteString("Certaines sous-positions sont soumises à restriction.\n")
	}

	for _, note := range t.LegalNotes {
		fmt.Fprintf(&b, "Note : %s\n", note)
	}
	for _, control := range t.Controls {
		fmt.Fprintf(&b, "Contrôle : %s (%s)", control.Type, control.Authority)
		if control.Inherited {
			b.WriteString(" [hérité de la position]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sourceLabel(source models.SourceType) string {
	switch source {
	case models.SourceLegal:
		return "texte juridique"
	case models.SourceNote:
		return "note tarifaire"
	case models.SourcePDF:
		return "publication"
	case models.SourceKnowledge:
		return "base de connaissances"
	case models.SourceWatch:
		return "veille"
	case models.SourceEvidence:
		return "document joint"
	default:
		return string(source)
	}
}
