package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection holding the schedule templates, blocked
// dates, service catalog and the appointment ledger.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken is returned by the conditional appointment insert when a
	// confirmed appointment already occupies part of the requested interval.
	ErrSlotTaken = errors.New("slot already taken")
)

// NewDB opens (or creates) the database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers, busy timeout so writers queue instead of
	// failing immediately.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS practitioners (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS weekday_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			practitioner_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 0,
			start_time TEXT,
			end_time TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(practitioner_id, day_of_week),
			FOREIGN KEY (practitioner_id) REFERENCES practitioners(id)
		)`,

		`CREATE TABLE IF NOT EXISTS blocked_dates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			practitioner_id TEXT NOT NULL,
			date TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(practitioner_id, date),
			FOREIGN KEY (practitioner_id) REFERENCES practitioners(id)
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price_cents INTEGER NOT NULL DEFAULT 0,
			practitioner_id TEXT NOT NULL,
			description TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (practitioner_id) REFERENCES practitioners(id)
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL,
			practitioner_id TEXT NOT NULL,
			patient_name TEXT NOT NULL,
			patient_email TEXT,
			patient_phone TEXT,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'confirmed',
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (service_id) REFERENCES services(id),
			FOREIGN KEY (practitioner_id) REFERENCES practitioners(id)
		)`,

		`CREATE TABLE IF NOT EXISTS event_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			appointment_id TEXT,
			payload TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rules_practitioner ON weekday_rules(practitioner_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_practitioner ON blocked_dates(practitioner_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_services_practitioner ON services(practitioner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_day ON appointments(practitioner_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// InsertEvent appends an audit record to the event log.
func (db *DB) InsertEvent(ctx context.Context, eventType, appointmentID string, payload []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO event_log (event_type, appointment_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		eventType, appointmentID, string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
