package repository

import (
	"context"
	"errors"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type TariffRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTariffRepository(db *pgxpool.Pool, logger *zap.Logger) *TariffRepository {
	return &TariffRepository{
		db:     db,
		logger: logger,
	}
}

var tariffColumns = []string{"id", "code_hs", "description", "ddi_rate", "vat_rate", "prohibited", "restricted", "country"}

func scanTariffRow(row pgx.Row, withSimilarity bool) (*models.TariffRow, error) {
	var t models.TariffRow
	dest := []any{&t.ID, &t.CodeHS, &t.Description, &t.DDIRate, &t.VATRate, &t.Prohibited, &t.Restricted, &t.Country}
	if withSimilarity {
		dest = append(dest, &t.Similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	t.Active = true
	return &t, nil
}

// GetByCode returns the active tariff row at exactly the given
// normalized code, or ErrNotFound.
func (r *TariffRepository) GetByCode(ctx context.Context, country, code string) (*models.TariffRow, error) {
	query := squirrel.Select(tariffColumns...).
		From("tariff_codes").
		Where(squirrel.Eq{"code_hs": code, "country": country, "active": true}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	row, err := scanTariffRow(r.db.QueryRow(ctx, sql, args...), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tariff row %s: %w", code, err)
	}
	return row, nil
}

// ListByPrefix returns active descendant rows whose code starts with
// prefix, excluding an exact match on the prefix itself.
func (r *TariffRepository) ListByPrefix(ctx context.Context, country, prefix string) ([]models.TariffRow, error) {
	query := squirrel.Select(tariffColumns...).
		From("tariff_codes").
		Where(squirrel.Like{"code_hs": prefix + "%"}).
		Where(squirrel.NotEq{"code_hs": prefix}).
		Where(squirrel.Eq{"country": country, "active": true}).
		OrderBy("code_hs ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tariff rows for prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var results []models.TariffRow
	for rows.Next() {
		t, err := scanTariffRow(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff row: %w", err)
		}
		results = append(results, *t)
	}
	return results, rows.Err()
}

// SearchSimilar performs a cosine-similarity search over tariff row
// embeddings, keeping results at or above the threshold.
func (r *TariffRepository) SearchSimilar(ctx context.Context, country string, embedding []float32, threshold float64, limit int) ([]models.TariffRow, error) {
	vec := vectorLiteral(embedding)

	query := squirrel.Select(tariffColumns...).
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("tariff_codes").
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
		return nil, fmt.Errorf("failed to search tariff rows: %w", err)
	}
	defer rows.Close()

	var results []models.TariffRow
	for rows.Next() {
		t, err := scanTariffRow(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff row: %w", err)
		}
		results = append(results, *t)
	}
	return results, rows.Err()
}

// KeywordSearch matches tariff descriptions against any of the keywords.
func (r *TariffRepository) KeywordSearch(ctx context.Context, country string, keywords []string, limit int) ([]models.TariffRow, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	or := squirrel.Or{}
	for _, kw := range keywords {
		or = append(or, squirrel.ILike{"description": keywordPattern(kw)})
	}

	query := squirrel.Select(tariffColumns...).
		From("tariff_codes").
		Where(or).
		Where(squirrel.Eq{"country": country, "active": true}).
		OrderBy("code_hs ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword-search tariff rows: %w", err)
	}
	defer rows.Close()

	var results []models.TariffRow
	for rows.Next() {
		t, err := scanTariffRow(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff row: %w", err)
		}
		results = append(results, *t)
	}
	return results, rows.Err()
}

// Create inserts one tariff line with its description embedding,
// idempotent on (code_hs, country).
func (r *TariffRepository) Create(ctx context.Context, row *models.TariffRow) error {
	query := squirrel.Insert("tariff_codes").
		Columns("id", "code_hs", "description", "ddi_rate", "vat_rate", "prohibited", "restricted", "country", "active", "embedding").
		Values(row.ID, row.CodeHS, row.Description, row.DDIRate, row.VATRate, row.Prohibited, row.Restricted, row.Country, true,
			squirrel.Expr("?::vector", vectorLiteral(row.Embedding))).
		Suffix(`ON CONFLICT (code_hs, country) DO UPDATE SET
			description = EXCLUDED.description,
			ddi_rate = EXCLUDED.ddi_rate,
			vat_rate = EXCLUDED.vat_rate,
			prohibited = EXCLUDED.prohibited,
			restricted = EXCLUDED.restricted,
			embedding = EXCLUDED.embedding,
			active = true`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create tariff row %s: %w", row.CodeHS, err)
	}
	return nil
}
