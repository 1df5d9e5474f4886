package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"consultorio/internal/model"
)

// ListPractitioners returns all active practitioners ordered by name.
func (db *DB) ListPractitioners(ctx context.Context) ([]model.Practitioner, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, is_active, created_at, updated_at
		FROM practitioners
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Practitioner
	for rows.Next() {
		var p model.Practitioner
		if err := rows.Scan(&p.ID, &p.Name, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPractitioner looks up one practitioner by id, active or not.
func (db *DB) GetPractitioner(ctx context.Context, id model.PractitionerID) (*model.Practitioner, error) {
	var p model.Practitioner
	err := db.QueryRowContext(ctx, `
		SELECT id, name, is_active, created_at, updated_at
		FROM practitioners
		WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetWeekSchedule loads a practitioner's weekly template. Days without a
// stored rule are simply absent and count as disabled.
func (db *DB) GetWeekSchedule(ctx context.Context, practitioner model.PractitionerID) (model.WeekSchedule, error) {
	return queryWeekSchedule(ctx, db.DB, practitioner)
}

func queryWeekSchedule(ctx context.Context, q querier, practitioner model.PractitionerID) (model.WeekSchedule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT day_of_week, enabled, COALESCE(start_time, ''), COALESCE(end_time, '')
		FROM weekday_rules
		WHERE practitioner_id = ?`, practitioner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedule := make(model.WeekSchedule)
	for rows.Next() {
		var day int
		var rule model.WeekdayRule
		if err := rows.Scan(&day, &rule.Enabled, &rule.Start, &rule.End); err != nil {
			return nil, err
		}
		if day < 0 || day > 6 {
			continue
		}
		schedule[time.Weekday(day)] = rule
	}
	return schedule, rows.Err()
}

// UpsertWeekdayRule overwrites one weekday of a practitioner's template.
// No history is kept.
func (db *DB) UpsertWeekdayRule(ctx context.Context, practitioner model.PractitionerID, day time.Weekday, rule model.WeekdayRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("weekday rule: %w", err)
	}

	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO weekday_rules (practitioner_id, day_of_week, enabled, start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(practitioner_id, day_of_week) DO UPDATE SET
			enabled = excluded.enabled,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			updated_at = excluded.updated_at`,
		practitioner, int(day), rule.Enabled, rule.Start, rule.End, now, now,
	)
	return err
}

// GetBlockedDates returns the practitioner's blocked set keyed by date.
func (db *DB) GetBlockedDates(ctx context.Context, practitioner model.PractitionerID) (map[string]struct{}, error) {
	return queryBlockedDates(ctx, db.DB, practitioner)
}

func queryBlockedDates(ctx context.Context, q querier, practitioner model.PractitionerID) (map[string]struct{}, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT date FROM blocked_dates WHERE practitioner_id = ?`, practitioner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocked := make(map[string]struct{})
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		blocked[d] = struct{}{}
	}
	return blocked, rows.Err()
}

// AddBlockedDate marks a date fully closed for a practitioner. Duplicates
// collapse silently (set semantics).
func (db *DB) AddBlockedDate(ctx context.Context, practitioner model.PractitionerID, date, reason string) error {
	if _, err := model.ParseDate(date); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO blocked_dates (practitioner_id, date, reason)
		VALUES (?, ?, ?)
		ON CONFLICT(practitioner_id, date) DO UPDATE SET reason = excluded.reason`,
		practitioner, date, reason,
	)
	return err
}

// RemoveBlockedDate reopens a previously blocked date.
func (db *DB) RemoveBlockedDate(ctx context.Context, practitioner model.PractitionerID, date string) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM blocked_dates WHERE practitioner_id = ? AND date = ?`,
		practitioner, date,
	)
	return err
}
