package repository

import (
	"context"
	"errors"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type LegalRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLegalRepository(db *pgxpool.Pool, logger *zap.Logger) *LegalRepository {
	return &LegalRepository{
		db:     db,
		logger: logger,
	}
}

var legalColumns = []string{"id", "article_number", "chunk_text", "language", "source_title", "source_doc_id"}

// SearchSimilar finds legal text chunks close to the question embedding,
// restricted to one language path (fr or ar).
func (r *LegalRepository) SearchSimilar(ctx context.Context, language string, embedding []float32, threshold float64, limit int) ([]models.LegalChunk, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select(legalColumns...).
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("legal_chunks").
		Where(squirrel.Eq{"language": language, "active": true}).
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
		return nil, fmt.Errorf("failed to search legal chunks: %w", err)
	}
	defer rows.Close()

	var results []models.LegalChunk
	for rows.Next() {
		var c models.LegalChunk
		if err := rows.Scan(&c.ID, &c.ArticleNumber, &c.Text, &c.Language, &c.SourceTitle, &c.SourceDocID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan legal chunk: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// KeywordSearch matches legal chunk text against keywords.
func (r *LegalRepository) KeywordSearch(ctx context.Context, language string, keywords []string, limit int) ([]models.LegalChunk, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	or := squirrel.Or{}
	for _, kw := range keywords {
		or = append(or, squirrel.ILike{"chunk_text": keywordPattern(kw)})
	}

	query := squirrel.Select(legalColumns...).
		From("legal_chunks").
		Where(or).
		Where(squirrel.Eq{"language": language, "active": true}).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword-search legal chunks: %w", err)
	}
	defer rows.Close()

	var results []models.LegalChunk
	for rows.Next() {
		var c models.LegalChunk
		if err := rows.Scan(&c.ID, &c.ArticleNumber, &c.Text, &c.Language, &c.SourceTitle, &c.SourceDocID); err != nil {
			return nil, fmt.Errorf("failed to scan legal chunk: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// GetByArticleNumbers returns chunks whose normalized article number is
// in the given set, any language.
func (r *LegalRepository) GetByArticleNumbers(ctx context.Context, numbers []string) ([]models.LegalChunk, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	query := squirrel.Select(legalColumns...).
		From("legal_chunks").
		Where(squirrel.Eq{"article_number": numbers, "active": true}).
		OrderBy("article_number ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get legal chunks by article: %w", err)
	}
	defer rows.Close()

	var results []models.LegalChunk
	for rows.Next() {
		var c models.LegalChunk
		if err := rows.Scan(&c.ID, &c.ArticleNumber, &c.Text, &c.Language, &c.SourceTitle, &c.SourceDocID); err != nil {
			return nil, fmt.Errorf("failed to scan legal chunk: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ResolveDownloadURL walks chunk -> source document and returns the
// document's URL, or ErrNotFound when the chain is broken.
func (r *LegalRepository) ResolveDownloadURL(ctx context.Context, sourceDocID uuid.UUID) (string, error) {
	query := squirrel.Select("url").
		From("documents").
		Where(squirrel.Eq{"id": sourceDocID, "active": true}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return "", err
	}

	var url *string
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&url); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve download url: %w", err)
	}
	if url == nil {
		return "", ErrNotFound
	}
	return *url, nil
}

// FindCanonicalCodeDocument locates the customs code publication used
// as the fallback source for article citations.
func (r *LegalRepository) FindCanonicalCodeDocument(ctx context.Context) (*models.PDFDocument, error) {
	query := squirrel.Select("id", "title", "chapter", "summary", "url", "page_count", "country", "created_at").
		From("documents").
		Where(squirrel.ILike{"title": "%code des douanes%"}).
		Where(squirrel.Eq{"active": true}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var d models.PDFDocument
	err = r.db.QueryRow(ctx, sql, args...).Scan(&d.ID, &d.Title, &d.Chapter, &d.Summary, &d.URL, &d.PageCount, &d.Country, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find canonical code document: %w", err)
	}
	return &d, nil
}

// Create inserts one legal chunk with its text embedding.
func (r *LegalRepository) Create(ctx context.Context, chunk *models.LegalChunk, embedding []float32) error {
	query := squirrel.Insert("legal_chunks").
		Columns("id", "article_number", "chunk_text", "language", "source_title", "source_doc_id", "active", "embedding").
		Values(chunk.ID, chunk.ArticleNumber, chunk.Text, chunk.Language, chunk.SourceTitle, chunk.SourceDocID, true,
			squirrel.Expr("?::vector", vectorLiteral(embedding))).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create legal chunk: %w", err)
	}
	return nil
}
