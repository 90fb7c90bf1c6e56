package repository

import (
	"context"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type KnowledgeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewKnowledgeRepository(db *pgxpool.Pool, logger *zap.Logger) *KnowledgeRepository {
	return &KnowledgeRepository{
		db:     db,
		logger: logger,
	}
}

var knowledgeColumns = []string{"id", "title", "content", "category", "url", "country"}

// SearchSimilar finds knowledge-base articles close to the question embedding.
func (r *KnowledgeRepository) SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.KnowledgeDoc, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select(knowledgeColumns...).
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("knowledge_docs").
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
		return nil, fmt.Errorf("failed to search knowledge docs: %w", err)
	}
	defer rows.Close()

	var results []models.KnowledgeDoc
	for rows.Next() {
		var d models.KnowledgeDoc
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Category, &d.URL, &d.Country, &d.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge doc: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// KeywordSearch matches article titles and content against keywords.
func (r *KnowledgeRepository) KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.KnowledgeDoc, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	or := squirrel.Or{}
	for _, kw := range keywords {
		or = append(or, squirrel.ILike{"title": keywordPattern(kw)}, squirrel.ILike{"content": keywordPattern(kw)})
	}

	query := squirrel.Select(knowledgeColumns...).
		From("knowledge_docs").
		Where(or).
		Where(squirrel.Eq{"country": country, "active": true}).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword-search knowledge docs: %w", err)
	}
	defer rows.Close()

	var results []models.KnowledgeDoc
	for rows.Next() {
		var d models.KnowledgeDoc
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Category, &d.URL, &d.Country); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge doc: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// Create inserts one knowledge-base article with its content embedding.
func (r *KnowledgeRepository) Create(ctx context.Context, doc *models.KnowledgeDoc, embedding []float32) error {
	query := squirrel.Insert("knowledge_docs").
		Columns("id", "title", "content", "category", "url", "country", "active", "embedding").
		Values(doc.ID, doc.Title, doc.Content, doc.Category, doc.URL, doc.Country, true,
			squirrel.Expr("?::vector", vectorLiteral(embedding))).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create knowledge doc: %w", err)
	}
	return nil
}
