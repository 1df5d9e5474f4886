package database

import (
	"context"
	"database/sql"
	"fmt"

	"consultorio/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DaySnapshot is one consistent view of everything the slot engine
// reads: the weekly template, the blocked set and the day ledger.
type DaySnapshot struct {
	Schedule     model.WeekSchedule
	BlockedDates map[string]struct{}
	Appointments []model.Appointment
}

// GetDaySnapshot reads the three slot inputs inside a single read-only
// transaction, so one computation never sees a blocked date or ledger
// entry committed between its reads. An empty date skips the ledger
// read and yields no appointments.
func (db *DB) GetDaySnapshot(ctx context.Context, practitioner model.PractitionerID, date string) (*DaySnapshot, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := &DaySnapshot{}
	if snap.Schedule, err = queryWeekSchedule(ctx, tx, practitioner); err != nil {
		return nil, err
	}
	if snap.BlockedDates, err = queryBlockedDates(ctx, tx, practitioner); err != nil {
		return nil, err
	}
	if date != "" {
		if snap.Appointments, err = queryDayAppointments(ctx, tx, practitioner, date); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read tx: %w", err)
	}
	return snap, nil
}
