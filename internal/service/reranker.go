package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"douane-rag/internal/models"
	"douane-rag/pkg/config"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// rerankSkipBelow: with this few passages the heuristic order is
// already trustworthy and the extra model round-trip buys nothing.
const rerankSkipBelow = 3

type toolCompleter interface {
	CompleteWithTool(ctx context.Context, systemPrompt, userPayload string, tool openai.Tool) (string, error)
}

// RerankerService reorders scored passages with a model judgment. Any
// failure falls back to the heuristic order: reranking refines, never
// gates.
type RerankerService struct {
	llm    toolCompleter
	cfg    *config.RAGConfig
	logger *zap.Logger
}

func NewRerankerService(llm toolCompleter, cfg *config.RAGConfig, logger *zap.Logger) *RerankerService {
	return &RerankerService{
		llm:    llm,
		cfg:    cfg,
		logger: logger,
	}
}

var rerankTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "score_passages",
		Description: "Note la pertinence de chaque passage pour répondre à la question.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"scores": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"index": {"type": "integer", "description": "Index du passage"},
							"score": {"type": "integer", "minimum": 0, "maximum": 10, "description": "Pertinence de 0 à 10"}
						},
						"required": ["index", "score"]
					}
				}
			},
			"required": ["scores"]
		}`),
	},
}

const rerankSystemPrompt = `Tu évalues la pertinence de passages réglementaires et tarifaires
pour répondre à une question douanière. Note chaque passage de 0 (hors sujet)
à 10 (répond directement). Appelle score_passages avec une note par passage.`

type rerankScores struct {
	Scores []struct {
		Index int `json:"index"`
		Score int `json:"score"`
	} `json:"scores"`
}

// Rerank asks the model to rescore the passages and reorders them
// accordingly. Returns the input order when disabled, when too few
// passages are given, or on any model or parse failure.
func (s *RerankerService) Rerank(ctx context.Context, question string, passages []models.ScoredPassage) []models.ScoredPassage {
	if !s.cfg.RerankerEnabled || len(passages) <= rerankSkipBelow {
		return passages
	}

	var payload strings.Builder
	payload.WriteString("Question : ")
	payload.WriteString(question)
	payload.WriteString("\n\nPassages :\n")
	for i, p := range passages {
		fmt.Fprintf(&payload, "\n[%d] (%s) %s\n", i, p.Source, p.Text)
	}

	raw, err := s.llm.CompleteWithTool(ctx, rerankSystemPrompt, payload.String(), rerankTool)
	if err != nil {
		s.logger.Warn("reranker call failed, keeping heuristic order", zap.Error(err))
		return passages
	}

	var parsed rerankScores
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger.Warn("unparsable reranker output, keeping heuristic order", zap.Error(err))
		return passages
	}

	modelScores := make(map[int]int, len(parsed.Scores))
	for _, entry := range parsed.Scores {
		if entry.Index < 0 || entry.Index >= len(passages) || entry.Score < 0 || entry.Score > 10 {
			s.logger.Warn("reranker returned out-of-range entry, keeping heuristic order",
				zap.Int("index", entry.Index),
				zap.Int("score", entry.Score),
			)
			return passages
		}
		modelScores[entry.Index] = entry.Score
	}
	if len(modelScores) != len(passages) {
		s.logger.Warn("reranker covered a partial passage set, keeping heuristic order",
			zap.Int("scored", len(modelScores)),
			zap.Int("passages", len(passages)),
		)
		return passages
	}

	indices := make([]int, len(passages))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return modelScores[indices[a]] > modelScores[indices[b]]
	})

	reordered := make([]models.ScoredPassage, len(passages))
	for pos, idx := range indices {
		reordered[pos] = passages[idx]
	}
	return reordered
}
