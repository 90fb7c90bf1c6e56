package repository

import (
	"context"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ControlRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewControlRepository(db *pgxpool.Pool, logger *zap.Logger) *ControlRepository {
	return &ControlRepository{
		db:     db,
		logger: logger,
	}
}

// ListByCodeOrPrefix returns active control rows registered at exactly
// the given code or at its 4-digit heading prefix.
func (r *ControlRepository) ListByCodeOrPrefix(ctx context.Context, country, code, prefix string) ([]models.ControlRow, error) {
	targets := []string{code}
	if prefix != "" && prefix != code {
		targets = append(targets, prefix)
	}

	query := squirrel.Select("id", "code_hs", "control_type", "authority", "country").
		From("controlled_products").
		Where(squirrel.Eq{"code_hs": targets, "country": country, "active": true}).
		OrderBy("code_hs ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list controls for %s: %w", code, err)
	}
	defer rows.Close()

	var results []models.ControlRow
	for rows.Next() {
		var c models.ControlRow
		if err := rows.Scan(&c.ID, &c.CodeHS, &c.ControlType, &c.Authority, &c.Country); err != nil {
			return nil, fmt.Errorf("failed to scan control row: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Create inserts one control requirement.
func (r *ControlRepository) Create(ctx context.Context, ctrl *models.ControlRow) error {
	query := squirrel.Insert("controlled_products").
		Columns("id", "code_hs", "control_type", "authority", "country", "active").
		Values(ctrl.ID, ctrl.CodeHS, ctrl.ControlType, ctrl.Authority, ctrl.Country, true).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create control for %s: %w", ctrl.CodeHS, err)
	}
	return nil
}
