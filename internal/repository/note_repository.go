package repository

import (
	"context"
	"fmt"

	"douane-rag/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type NoteRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNoteRepository(db *pgxpool.Pool, logger *zap.Logger) *NoteRepository {
	return &NoteRepository{
		db:     db,
		logger: logger,
	}
}

// ListByCodes returns active legal notes attached to any of the given
// codes, ordered shortest code first so chapter notes precede heading
// notes (root-first for ancestor inheritance).
func (r *NoteRepository) ListByCodes(ctx context.Context, country string, codes []string) ([]models.TariffNote, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	query := squirrel.Select("id", "code_hs", "note", "country").
		From("tariff_notes").
		Where(squirrel.Eq{"code_hs": codes, "country": country, "active": true}).
		OrderBy("length(code_hs) ASC", "code_hs ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tariff notes: %w", err)
	}
	defer rows.Close()

	var results []models.TariffNote
	for rows.Next() {
		var n models.TariffNote
		if err := rows.Scan(&n.ID, &n.CodeHS, &n.Note, &n.Country); err != nil {
			return nil, fmt.Errorf("failed to scan tariff note: %w", err)
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// Create inserts one legal note.
func (r *NoteRepository) Create(ctx context.Context, note *models.TariffNote) error {
	query := squirrel.Insert("tariff_notes").
		Columns("id", "code_hs", "note", "country", "active").
		Values(note.ID, note.CodeHS, note.Note, note.Country, true).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create tariff note for %s: %w", note.CodeHS, err)
	}
	return nil
}
