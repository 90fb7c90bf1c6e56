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

// DocumentRepository covers the documents table: regulatory PDF
// publications indexed for retrieval plus user-uploaded files.
type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

var documentColumns = []string{"id", "title", "chapter", "summary", "url", "page_count", "country", "created_at"}

func scanDocument(row pgx.Row, withSimilarity bool) (*models.PDFDocument, error) {
	var d models.PDFDocument
	dest := []any{&d.ID, &d.Title, &d.Chapter, &d.Summary, &d.URL, &d.PageCount, &d.Country, &d.CreatedAt}
	if withSimilarity {
		dest = append(dest, &d.Similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &d, nil
}

// SearchSimilar runs a similarity search over document summary embeddings.
func (r *DocumentRepository) SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.PDFDocument, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select(documentColumns...).
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("documents").
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
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var results []models.PDFDocument
	for rows.Next() {
		d, err := scanDocument(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		results = append(results, *d)
	}
	return results, rows.Err()
}

// KeywordSearch matches document titles and summaries against keywords.
func (r *DocumentRepository) KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.PDFDocument, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	or := squirrel.Or{}
	for _, kw := range keywords {
		or = append(or, squirrel.ILike{"title": keywordPattern(kw)}, squirrel.ILike{"summary": keywordPattern(kw)})
	}

	query := squirrel.Select(documentColumns...).
		From("documents").
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
		return nil, fmt.Errorf("failed to keyword-search documents: %w", err)
	}
	defer rows.Close()

	var results []models.PDFDocument
	for rows.Next() {
		d, err := scanDocument(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		results = append(results, *d)
	}
	return results, rows.Err()
}

// FindChapterPDF locates the tariff publication covering one chapter.
// Several naming conventions coexist across publication years, so each
// pattern is tried in order.
func (r *DocumentRepository) FindChapterPDF(ctx context.Context, country, chapter string) (*models.PDFDocument, error) {
	patterns := []string{
		"chapitre " + chapter + "%",
		"chap. " + chapter + "%",
		"%tarif%chapitre%" + chapter + "%",
		"ch" + chapter + "_%",
	}

	for _, pattern := range patterns {
		query := squirrel.Select(documentColumns...).
			From("documents").
			Where(squirrel.Or{
				squirrel.ILike{"title": pattern},
				squirrel.Eq{"chapter": chapter},
			}).
			Where(squirrel.Eq{"country": country, "active": true}).
			OrderBy("created_at DESC").
			Limit(1).
			PlaceholderFormat(squirrel.Dollar)

		sql, args, err := query.ToSql()
		if err != nil {
			return nil, err
		}

		d, err := scanDocument(r.db.QueryRow(ctx, sql, args...), false)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to find chapter pdf: %w", err)
		}
		return d, nil
	}
	return nil, ErrNotFound
}

// GetByID returns one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PDFDocument, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	d, err := scanDocument(r.db.QueryRow(ctx, sql, args...), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return d, nil
}

// Create stores an uploaded document with its raw text content; the
// summary and extracted text are filled in by later analysis batches.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.PDFDocument) error {
	query := squirrel.Insert("documents").
		Columns("id", "title", "chapter", "summary", "content", "url", "page_count", "country", "active", "created_at").
		Values(doc.ID, doc.Title, doc.Chapter, doc.Summary, doc.FullText, doc.URL, doc.PageCount, doc.Country, true, doc.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetContent returns the raw text content of a document, as stored at
// upload time.
func (r *DocumentRepository) GetContent(ctx context.Context, id uuid.UUID) (string, error) {
	query := squirrel.Select("coalesce(content, '')").
		From("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return "", err
	}

	var content string
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get document content: %w", err)
	}
	return content, nil
}

// AppendExtraction adds a batch of extracted text and refreshes the
// running summary after one analysis page range.
func (r *DocumentRepository) AppendExtraction(ctx context.Context, id uuid.UUID, summary, text string) error {
	query := squirrel.Update("documents").
		Set("summary", summary).
		Set("full_text", squirrel.Expr("coalesce(full_text, '') || ?", text)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to append extraction: %w", err)
	}
	return nil
}
