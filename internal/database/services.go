package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"consultorio/internal/model"
)

func scanService(row interface{ Scan(...any) error }) (*model.Service, error) {
	var s model.Service
	var description sql.NullString
	err := row.Scan(
		&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Practitioner,
		&description, &s.IsActive, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if description.Valid {
		s.Description = description.String
	}
	return &s, nil
}

// GetService looks up one catalog entry by id.
func (db *DB) GetService(ctx context.Context, id string) (*model.Service, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, price_cents, practitioner_id,
		       description, is_active, sort_order, created_at, updated_at
		FROM services
		WHERE id = ?`, id)
	return scanService(row)
}

// ListServices returns active catalog entries, optionally filtered by
// practitioner, in display order.
func (db *DB) ListServices(ctx context.Context, practitioner model.PractitionerID) ([]model.Service, error) {
	query := `
		SELECT id, name, duration_minutes, price_cents, practitioner_id,
		       description, is_active, sort_order, created_at, updated_at
		FROM services
		WHERE is_active = 1`
	args := []any{}
	if practitioner != "" {
		query += ` AND practitioner_id = ?`
		args = append(args, practitioner)
	}
	query += ` ORDER BY sort_order, name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpsertService creates or updates a catalog entry. Existing appointments
// keep the end times computed from the duration in force when they were
// booked.
func (db *DB) UpsertService(ctx context.Context, s model.Service) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("service: %w", err)
	}

	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, name, duration_minutes, price_cents, practitioner_id,
		                      description, is_active, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM services WHERE id = ?), ?), ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			price_cents = excluded.price_cents,
			practitioner_id = excluded.practitioner_id,
			description = excluded.description,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at`,
		s.ID, s.Name, s.DurationMinutes, s.PriceCents, s.Practitioner,
		s.Description, s.IsActive, s.SortOrder, s.ID, now, now,
	)
	return err
}
