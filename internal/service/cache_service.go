package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"douane-rag/internal/models"
	"douane-rag/internal/repository"
	"douane-rag/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type cacheStore interface {
	FindByHash(ctx context.Context, hash string, maxAge time.Duration) (*models.CachedResponse, error)
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, maxAge time.Duration) (*models.CachedResponse, error)
	Upsert(ctx context.Context, entry *models.CachedResponse) error
	IncrementHitCount(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// CacheService serves validated answers for repeated questions. Lookup
// is exact-hash first, then embedding similarity above a strict
// threshold; storage is gated so low-confidence or image-dependent
// answers are never replayed.
type CacheService struct {
	store  cacheStore
	llm    embedder
	cfg    *config.CacheConfig
	logger *zap.Logger
}

func NewCacheService(store cacheStore, llm embedder, cfg *config.CacheConfig, logger *zap.Logger) *CacheService {
	return &CacheService{
		store:  store,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
	}
}

// HashQuestion canonicalizes the question text before hashing so
// casing and stray whitespace do not defeat the exact-match path.
func HashQuestion(question string) string {
	canonical := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Lookup returns a fresh cached answer for the question, or nil. An
// unreachable cache or embedding service degrades to a miss.
func (s *CacheService) Lookup(ctx context.Context, question string) *models.CachedResponse {
	hash := HashQuestion(question)

	entry, err := s.store.FindByHash(ctx, hash, s.cfg.Retention)
	if err == nil {
		s.recordHit(ctx, entry)
		return entry
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("cache hash lookup failed", zap.Error(err))
		return nil
	}

	embedding, err := s.llm.Embed(ctx, question)
	if err != nil {
		s.logger.Warn("cache embedding failed, skipping similarity lookup", zap.Error(err))
		return nil
	}

	entry, err = s.store.FindSimilar(ctx, embedding, s.cfg.SimilarityThreshold, s.cfg.Retention)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("cache similarity lookup failed", zap.Error(err))
		}
		return nil
	}
	s.recordHit(ctx, entry)
	return entry
}

func (s *CacheService) recordHit(ctx context.Context, entry *models.CachedResponse) {
	if err := s.store.IncrementHitCount(ctx, entry.QuestionHash); err != nil {
		s.logger.Warn("cache hit count update failed", zap.Error(err))
	}
	s.logger.Info("cache hit",
		zap.String("question_hash", entry.QuestionHash),
		zap.Float64("similarity", entry.Similarity),
	)
}

// Store persists a validated answer for future replay. Answers that
// depended on attached images, carried low confidence or came back
// empty are not cacheable.
func (s *CacheService) Store(ctx context.Context, question, answer string, validation *models.ValidationResult, hadImages bool) {
	if strings.TrimSpace(answer) == "" || hadImages || validation.Confidence == models.ConfidenceLow {
		s.logger.Debug("answer not cacheable",
			zap.Bool("had_images", hadImages),
			zap.String("confidence", string(validation.Confidence)),
		)
		return
	}

	embedding, err := s.llm.Embed(ctx, question)
	if err != nil {
		s.logger.Warn("cache store embedding failed", zap.Error(err))
		return
	}

	entry := &models.CachedResponse{
		ID:           uuid.New(),
		QuestionHash: HashQuestion(question),
		Question:     question,
		Embedding:    embedding,
		Answer:       answer,
		Confidence:   validation.Confidence,
		Citations:    validation.Sources,
		HasEvidence:  validation.HasEvidence,
		CreatedAt:    time.Now(),
	}
	if err := s.store.Upsert(ctx, entry); err != nil {
		s.logger.Warn("cache store failed", zap.Error(err))
	}
}

// Sweep drops entries past the retention window. Called periodically
// from the server loop.
func (s *CacheService) Sweep(ctx context.Context) {
	dropped, err := s.store.DeleteExpired(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Warn("cache sweep failed", zap.Error(err))
		return
	}
	if dropped > 0 {
		s.logger.Info("cache sweep", zap.Int64("dropped", dropped))
	}
}
