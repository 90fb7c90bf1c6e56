package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// CacheRepository persists validated question/answer pairs. The only
// write path of the RAG core besides document uploads.
type CacheRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCacheRepository(db *pgxpool.Pool, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{
		db:     db,
		logger: logger,
	}
}

var cacheColumns = []string{"id", "question_hash", "question", "answer", "confidence", "citations", "has_evidence", "hit_count", "created_at"}

func scanCached(row pgx.Row, withSimilarity bool) (*models.CachedResponse, error) {
	var c models.CachedResponse
	var citations []byte
	dest := []any{&c.ID, &c.QuestionHash, &c.Question, &c.Answer, &c.Confidence, &citations, &c.HasEvidence, &c.HitCount, &c.CreatedAt}
	if withSimilarity {
		dest = append(dest, &c.Similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &c.Citations); err != nil {
			return nil, fmt.Errorf("failed to decode cached citations: %w", err)
		}
	}
	return &c, nil
}

// FindByHash returns a fresh cache entry with exactly this question hash.
func (r *CacheRepository) FindByHash(ctx context.Context, hash string, maxAge time.Duration) (*models.CachedResponse, error) {
	query := squirrel.Select(cacheColumns...).
		From("response_cache").
		Where(squirrel.Eq{"question_hash": hash}).
		Where(squirrel.Expr("created_at > NOW() - ?::interval", maxAge.String())).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanCached(r.db.QueryRow(ctx, sql, args...), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find cached response: %w", err)
	}
	return c, nil
}

// FindSimilar returns the closest fresh entry at or above the (strict)
// similarity threshold.
func (r *CacheRepository) FindSimilar(ctx context.Context, embedding []float32, threshold float64, maxAge time.Duration) (*models.CachedResponse, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select(cacheColumns...).
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("response_cache").
		Where(squirrel.Expr("1 - (embedding <=> ?::vector) >= ?", vec, threshold)).
		Where(squirrel.Expr("created_at > NOW() - ?::interval", maxAge.String())).
		OrderByClause("embedding <=> ?::vector", vec).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanCached(r.db.QueryRow(ctx, sql, args...), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find similar cached response: %w", err)
	}
	return c, nil
}

// Upsert stores a validated response, idempotent on the question hash.
// A repeat of the same question refreshes the stored answer and its
// creation time rather than duplicating the row.
func (r *CacheRepository) Upsert(ctx context.Context, entry *models.CachedResponse) error {
	citations, err := json.Marshal(entry.Citations)
	if err != nil {
		return fmt.Errorf("failed to encode citations: %w", err)
	}

	query := squirrel.Insert("response_cache").
		Columns("id", "question_hash", "question", "embedding", "answer", "confidence", "citations", "has_evidence", "hit_count", "created_at").
		Values(entry.ID, entry.QuestionHash, entry.Question,
			squirrel.Expr("?::vector", vectorLiteral(entry.Embedding)),
			entry.Answer, entry.Confidence, citations, entry.HasEvidence, 0, entry.CreatedAt).
		Suffix(`ON CONFLICT (question_hash) DO UPDATE SET
			answer = EXCLUDED.answer,
			confidence = EXCLUDED.confidence,
			citations = EXCLUDED.citations,
			has_evidence = EXCLUDED.has_evidence,
			created_at = EXCLUDED.created_at`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to upsert cached response: %w", err)
	}
	return nil
}

// IncrementHitCount bumps the hit counter for a served entry.
func (r *CacheRepository) IncrementHitCount(ctx context.Context, hash string) error {
	query := squirrel.Update("response_cache").
		Set("hit_count", squirrel.Expr("hit_count + 1")).
		Where(squirrel.Eq{"question_hash": hash}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to increment hit count: %w", err)
	}
	return nil
}

// DeleteExpired removes entries older than the retention window and
// returns how many were dropped.
func (r *CacheRepository) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query := squirrel.Delete("response_cache").
		Where(squirrel.Expr("created_at <= NOW() - ?::interval", retention.String())).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
