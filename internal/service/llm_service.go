package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"douane-rag/internal/hscode"
	"douane-rag/pkg/config"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrServiceUnavailable is surfaced after retries against the language
// service are exhausted.
var ErrServiceUnavailable = errors.New("language service unavailable")

// maxEmbedChars truncates over-length embedding input; the upstream
// model tolerates truncation, not oversize requests.
const maxEmbedChars = 8000

// LLMService wraps the completion/embedding/vision endpoints behind the
// narrow contracts the pipeline depends on. Vendor specifics stay here.
type LLMService struct {
	client *openai.Client
	cfg    *config.LLMConfig
	logger *zap.Logger
}

func NewLLMService(cfg *config.LLMConfig, logger *zap.Logger) *LLMService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &LLMService{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

// withRetry runs fn with a per-attempt timeout and exponential backoff.
// Context cancellation is respected between attempts; exhaustion maps
// to ErrServiceUnavailable so callers never see transport detail.
func (s *LLMService) withRetry(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	backoff := s.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("LLM call failed",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if attempt == s.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, lastErr)
}

// Embed converts text to a fixed-length vector. Deterministic for
// identical input; over-length input is truncated.
func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}

	var vector []float32
	err := s.withRetry(ctx, "embed", s.cfg.RequestTimeout, func(ctx context.Context) error {
		resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(s.cfg.EmbeddingModel),
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("empty embedding response")
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// Complete sends a system prompt plus user payload and returns the
// generated text.
func (s *LLMService) Complete(ctx context.Context, systemPrompt, userPayload string) (string, error) {
	var content string
	err := s.withRetry(ctx, "complete", s.cfg.RequestTimeout, func(ctx context.Context) error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.cfg.Model,
			Temperature: s.cfg.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPayload},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices in completion response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// CompleteWithTool forces a single tool call and returns its raw
// arguments. Used by the relevance re-ranker.
func (s *LLMService) CompleteWithTool(ctx context.Context, systemPrompt, userPayload string, tool openai.Tool) (string, error) {
	var arguments string
	err := s.withRetry(ctx, "complete_with_tool", s.cfg.RequestTimeout, func(ctx context.Context) error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.cfg.Model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPayload},
			},
			Tools: []openai.Tool{tool},
			ToolChoice: openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: tool.Function.Name},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
			return errors.New("no tool call in response")
		}
		arguments = resp.Choices[0].Message.ToolCalls[0].Function.Arguments
		return nil
	})
	if err != nil {
		return "", err
	}
	return arguments, nil
}

// AnalyzeImage extracts text and product hints from an attached image
// through the vision model. data is a base64 payload.
func (s *LLMService) AnalyzeImage(ctx context.Context, mimeType, data, question string) (string, error) {
	prompt := "Décris la marchandise visible sur ce document et extrais tout texte, " +
		"code tarifaire, montant ou mention réglementaire. Réponds en texte brut."
	if question != "" {
		prompt += "\nQuestion de l'utilisateur : " + question
	}

	var content string
	err := s.withRetry(ctx, "analyze_image", s.cfg.AnalysisTimeout, func(ctx context.Context) error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.cfg.VisionModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: prompt},
						{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL: fmt.Sprintf("data:%s;base64,%s", mimeType, data),
							},
						},
					},
				},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices in vision response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// DocumentExtraction is the structured result of analyzing one slice
// of a document.
type DocumentExtraction struct {
	Summary        string   `json:"summary"`
	SuggestedCodes []string `json:"suggested_codes"`
	Text           string   `json:"text"`
}

const extractionSystemPrompt = `Tu analyses des documents douaniers et tarifaires.
Réponds UNIQUEMENT avec un objet JSON: {"summary": "...", "suggested_codes": ["..."], "text": "..."}.
- summary: résumé du contenu en 2-3 phrases.
- suggested_codes: codes SH plausibles mentionnés ou déductibles (chiffres uniquement).
- text: le texte utile extrait, structure préservée.`

// ExtractFromText analyzes one page range of document text and returns
// a structured extraction. Malformed model output degrades to a raw
// text wrap instead of failing the batch.
func (s *LLMService) ExtractFromText(ctx context.Context, question, pageText string) (*DocumentExtraction, error) {
	user := pageText
	if question != "" {
		user = "Question de l'utilisateur : " + question + "\n\nDocument :\n" + pageText
	}

	content, err := s.Complete(ctx, extractionSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	extraction, err := parseExtraction(content)
	if err != nil {
		s.logger.Warn("Unparsable extraction output, wrapping raw text", zap.Error(err))
		return &DocumentExtraction{Summary: firstLine(content), Text: content}, nil
	}
	return extraction, nil
}

func parseExtraction(content string) (*DocumentExtraction, error) {
	// The model occasionally wraps JSON in markdown fences or prose.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return nil, errors.New("no JSON object in extraction output")
	}

	var extraction DocumentExtraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &extraction); err != nil {
		return nil, fmt.Errorf("failed to parse extraction JSON: %w", err)
	}

	var codes []string
	for _, c := range extraction.SuggestedCodes {
		if n := hscode.Normalize(c); hscode.IsPlausible(n) {
			codes = append(codes, n)
		}
	}
	extraction.SuggestedCodes = codes
	return &extraction, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
