package database

import (
	"context"
	"fmt"
	"time"

	"consultorio/internal/config"
	"consultorio/internal/model"
)

// SyncFromConfig applies practitioners.yaml to the database: it upserts
// practitioners, overwrites their weekly templates, replaces their blocked
// sets (practitioner dates plus clinic holidays), upserts the service
// catalog and deactivates anything that disappeared from the file.
// Appointments are never touched.
func (db *DB) SyncFromConfig(ctx context.Context, cfg *config.PractitionersConfig) error {
	if cfg == nil {
		return fmt.Errorf("practitioners config is nil")
	}

	now := time.Now()
	seen := make(map[model.PractitionerID]struct{}, len(cfg.Practitioners))

	for _, p := range cfg.Practitioners {
		id := model.PractitionerID(p.ID)

		// Preserve created_at if the practitioner already exists.
		_, err := db.ExecContext(ctx, `
			INSERT INTO practitioners (id, name, is_active, created_at, updated_at)
			VALUES (?, ?, ?, COALESCE((SELECT created_at FROM practitioners WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			p.ID, p.Name, p.IsActive, p.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync practitioner %s: %w", p.ID, err)
		}
		seen[id] = struct{}{}

		schedule := p.WeekSchedule()
		for day := time.Sunday; day <= time.Saturday; day++ {
			if err := db.UpsertWeekdayRule(ctx, id, day, schedule.RuleFor(day)); err != nil {
				return fmt.Errorf("sync practitioner %s day %d: %w", p.ID, day, err)
			}
		}

		if err := db.replaceBlockedDates(ctx, id, p.BlockedDates, cfg.Holidays); err != nil {
			return fmt.Errorf("sync practitioner %s blocked dates: %w", p.ID, err)
		}
	}

	// Deactivate practitioners that disappeared from config.
	rows, err := db.QueryContext(ctx, `SELECT id FROM practitioners`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id model.PractitionerID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, `UPDATE practitioners SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate practitioner %s: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return db.syncServices(ctx, cfg, now)
}

func (db *DB) replaceBlockedDates(ctx context.Context, id model.PractitionerID, dates, holidays []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocked_dates WHERE practitioner_id = ?`, id); err != nil {
		return err
	}

	insert := func(date, reason string) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocked_dates (practitioner_id, date, reason)
			VALUES (?, ?, ?)
			ON CONFLICT(practitioner_id, date) DO NOTHING`,
			id, date, reason)
		return err
	}

	for _, d := range dates {
		if err := insert(d, ""); err != nil {
			return err
		}
	}
	for _, h := range holidays {
		if err := insert(h, "holiday"); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *DB) syncServices(ctx context.Context, cfg *config.PractitionersConfig, now time.Time) error {
	seen := make(map[string]struct{}, len(cfg.Services))
	for i := range cfg.Services {
		svc := cfg.Services[i].Model()
		if err := db.UpsertService(ctx, svc); err != nil {
			return fmt.Errorf("sync service %s: %w", svc.ID, err)
		}
		seen[svc.ID] = struct{}{}
	}

	rows, err := db.QueryContext(ctx, `SELECT id FROM services`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate service %s: %w", id, err)
		}
	}
	return rows.Err()
}
