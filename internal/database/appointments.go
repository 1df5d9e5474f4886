package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"consultorio/internal/model"
)

func scanAppointment(row interface{ Scan(...any) error }) (*model.Appointment, error) {
	var a model.Appointment
	var email, phone, end, notes sql.NullString
	err := row.Scan(
		&a.ID, &a.ServiceID, &a.Practitioner, &a.PatientName, &email, &phone,
		&a.Date, &a.Start, &end, &a.Status, &notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.PatientEmail = email.String
	a.PatientPhone = phone.String
	a.End = end.String
	a.Notes = notes.String
	return &a, nil
}

const appointmentColumns = `id, service_id, practitioner_id, patient_name, patient_email,
	patient_phone, date, start_time, end_time, status, notes, created_at, updated_at`

// GetAppointment looks up one ledger entry by id.
func (db *DB) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = ?`, id)
	return scanAppointment(row)
}

// ListDayAppointments returns every ledger entry (any status) for one
// practitioner and date, ordered by start time. The slot engine decides
// which of them obstruct.
func (db *DB) ListDayAppointments(ctx context.Context, practitioner model.PractitionerID, date string) ([]model.Appointment, error) {
	return queryDayAppointments(ctx, db.DB, practitioner, date)
}

func queryDayAppointments(ctx context.Context, q querier, practitioner model.PractitionerID, date string) ([]model.Appointment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = ? AND date = ?
		ORDER BY start_time`, practitioner, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListAppointmentsRange returns ledger entries within [from, to] inclusive,
// optionally filtered by practitioner, ordered by date then start time.
func (db *DB) ListAppointmentsRange(ctx context.Context, practitioner model.PractitionerID, from, to string) ([]model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date >= ? AND date <= ?`
	args := []any{from, to}
	if practitioner != "" {
		query += ` AND practitioner_id = ?`
		args = append(args, practitioner)
	}
	query += ` ORDER BY date, start_time`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateAppointmentChecked appends a new appointment, re-checking inside
// the same transaction that no confirmed appointment of the practitioner
// overlaps the requested interval. Returns ErrSlotTaken when the interval
// is already occupied, so check-then-append is atomic even if a race got
// past the admission lock.
func (db *DB) CreateAppointmentChecked(ctx context.Context, a *model.Appointment) error {
	start, err := model.MinutesOfDay(a.Start)
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	end, err := model.MinutesOfDay(a.End)
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = ? AND date = ? AND status = ?`,
		a.Practitioner, a.Date, model.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("load day ledger: %w", err)
	}

	for rows.Next() {
		existing, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return err
		}
		if existing.Blocks(start, end) {
			rows.Close()
			return ErrSlotTaken
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (id, service_id, practitioner_id, patient_name, patient_email,
		                          patient_phone, date, start_time, end_time, status, notes,
		                          created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ServiceID, a.Practitioner, a.PatientName, a.PatientEmail,
		a.PatientPhone, a.Date, a.Start, a.End, a.Status, a.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// UpdateAppointmentStatus unconditionally sets the status of one
// appointment and returns the updated row. Reactivation deliberately skips
// collision checks; callers flag any resulting overlap separately.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?, updated_at = ?
		WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return db.GetAppointment(ctx, id)
}

// FindConfirmedOverlaps scans one practitioner-day for pairs of confirmed
// appointments occupying intersecting intervals. A non-empty result means
// the ledger invariant was broken (e.g. by a permissive reactivation) and
// must be alerted on, never silently repaired.
func (db *DB) FindConfirmedOverlaps(ctx context.Context, practitioner model.PractitionerID, date string) ([][2]model.Appointment, error) {
	all, err := db.ListDayAppointments(ctx, practitioner, date)
	if err != nil {
		return nil, err
	}

	var confirmed []model.Appointment
	for _, a := range all {
		if a.Status == model.StatusConfirmed {
			confirmed = append(confirmed, a)
		}
	}

	var pairs [][2]model.Appointment
	for i := 0; i < len(confirmed); i++ {
		for j := i + 1; j < len(confirmed); j++ {
			if confirmed[i].OverlapsWith(&confirmed[j]) {
				pairs = append(pairs, [2]model.Appointment{confirmed[i], confirmed[j]})
			}
		}
	}
	return pairs, nil
}
