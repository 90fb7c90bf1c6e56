package repository

import (
	"context"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type HSCodeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewHSCodeRepository(db *pgxpool.Pool, logger *zap.Logger) *HSCodeRepository {
	return &HSCodeRepository{
		db:     db,
		logger: logger,
	}
}

// SearchSimilar finds nomenclature entries whose description embedding
// is close to the question embedding.
func (r *HSCodeRepository) SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.HSCode, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select("id", "code", "description", "country").
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("hs_codes").
		Where(squirrel.Eq{"country": country, "active": true}).
		Where(squirrel.Expr("1 - (embedding <=> ?::vector) >= ?", vec, threshold)).
		OrderByClause("embedding <=> ?::vector", vec).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search hs codes: %w", err)
	}
	defer rows.Close()

	var results []models.HSCode
	for rows.Next() {
		var c models.HSCode
		if err := rows.Scan(&c.ID, &c.Code, &c.Description, &c.Country, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan hs code: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// KeywordSearch matches nomenclature descriptions against keywords.
func (r *HSCodeRepository) KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.HSCode, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	or := squirrel.Or{}
	for _, kw := range keywords {
		or = append(or, squirrel.ILike{"description": keywordPattern(kw)})
	}

	query := squirrel.Select("id", "code", "description", "country").
		From("hs_codes").
		Where(or).
		Where(squirrel.Eq{"country": country, "active": true}).
		OrderBy("code ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword-search hs codes: %w", err)
	}
	defer rows.Close()

	var results []models.HSCode
	for rows.Next() {
		var c models.HSCode
		if err := rows.Scan(&c.ID, &c.Code, &c.Description, &c.Country); err != nil {
			return nil, fmt.Errorf("failed to scan hs code: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Create inserts one nomenclature entry, idempotent on (code, country).
func (r *HSCodeRepository) Create(ctx context.Context, code *models.HSCode, embedding []float32) error {
	query := squirrel.Insert("hs_codes").
		Columns("id", "code", "description", "country", "active", "embedding").
		Values(code.ID, code.Code, code.Description, code.Country, true,
			squirrel.Expr("?::vector", vectorLiteral(embedding))).
		Suffix(`ON CONFLICT (code, country) DO UPDATE SET
			description = EXCLUDED.description,
			embedding = EXCLUDED.embedding,
			active = true`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create hs code %s: %w", code.Code, err)
	}
	return nil
}
