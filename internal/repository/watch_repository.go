package repository

import (
	"context"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type WatchRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewWatchRepository(db *pgxpool.Pool, logger *zap.Logger) *WatchRepository {
	return &WatchRepository{
		db:     db,
		logger: logger,
	}
}

// SearchSimilar finds monitoring documents close to the question
// embedding. Importance weighting happens in the retriever, not here.
func (r *WatchRepository) SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.WatchDocument, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select("id", "title", "content", "importance", "url", "country").
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("watch_documents").
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
		return nil, fmt.Errorf("failed to search watch documents: %w", err)
	}
	defer rows.Close()

	var results []models.WatchDocument
	for rows.Next() {
		var d models.WatchDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Importance, &d.URL, &d.Country, &d.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan watch document: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// Create inserts one monitoring document with its content embedding.
func (r *WatchRepository) Create(ctx context.Context, doc *models.WatchDocument, embedding []float32) error {
	query := squirrel.Insert("watch_documents").
		Columns("id", "title", "content", "importance", "url", "country", "active", "embedding").
		Values(doc.ID, doc.Title, doc.Content, doc.Importance, doc.URL, doc.Country, true,
			squirrel.Expr("?::vector", vectorLiteral(embedding))).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create watch document: %w", err)
	}
	return nil
}
