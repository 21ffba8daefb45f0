// Package database persists reservations and restaurant events in
// sqlite and performs the server-side slot-conflict check.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"osteria/internal/models"
	"osteria/internal/slot"
)

// ErrSlotTaken means the requested interval overlaps an existing
// reservation or event for the same table.
var ErrSlotTaken = errors.New("table already booked for this slot")

// Store is the sqlite-backed reservation store.
type Store struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewStore opens (or creates) the database at path.
func NewStore(path string, logger *zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode and a busy timeout keep concurrent submissions from
	// tripping over sqlite's single writer.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{DB: db, logger: logger}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			start_tick INTEGER NOT NULL,
			duration_ticks INTEGER NOT NULL,
			table_id TEXT NOT NULL,
			ppl INTEGER NOT NULL,
			starters TEXT,
			phone TEXT NOT NULL,
			address TEXT NOT NULL,
			external_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT,
			start_tick INTEGER NOT NULL,
			duration_ticks INTEGER NOT NULL,
			table_id TEXT NOT NULL,
			repeat TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_date_table ON reservations(date, table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_external ON reservations(external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_repeat ON events(repeat)`,
		`CREATE INDEX IF NOT EXISTS idx_events_date_table ON events(date, table_id)`,
	}

	for _, query := range queries {
		if _, err := s.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// ReservationsInWindow returns reservations as wire records, filtered
// by the inclusive date window.
func (s *Store) ReservationsInWindow(ctx context.Context, w slot.Window) ([]models.Record, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, date, start_tick, duration_ticks, table_id
		 FROM reservations WHERE date >= ? AND date <= ? ORDER BY date, start_tick`,
		string(w.Min), string(w.Max))
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// EventsInWindow returns non-repeating events inside the window.
func (s *Store) EventsInWindow(ctx context.Context, w slot.Window) ([]models.Record, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, date, start_tick, duration_ticks, table_id
		 FROM events WHERE repeat = '' AND date >= ? AND date <= ? ORDER BY date, start_tick`,
		string(w.Min), string(w.Max))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RepeatingEvents returns all repeating events. They are
// date-independent, so no window filter applies.
func (s *Store) RepeatingEvents(ctx context.Context) ([]models.Record, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, start_tick, duration_ticks, table_id, repeat
		 FROM events WHERE repeat != '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query repeating events: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			rec    models.Record
			start  int
			ticks  int
			table  string
			repeat string
		)
		if err := rows.Scan(&rec.ID, &start, &ticks, &table, &repeat); err != nil {
			return nil, err
		}
		rec.Hour = slot.Tick(start).String()
		rec.Duration = float64(ticks) / slot.TicksPerHour
		rec.Table = models.ParseTableID(table)
		rec.Repeat = repeat
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateEvent inserts an event record, used by seeding and admin tooling.
func (s *Store) CreateEvent(ctx context.Context, rec models.Record) (int64, error) {
	iv, err := rec.ResolveInterval()
	if err != nil {
		return 0, err
	}
	res, err := s.ExecContext(ctx,
		`INSERT INTO events (date, start_tick, duration_ticks, table_id, repeat) VALUES (?, ?, ?, ?, ?)`,
		string(iv.Date), int(iv.Start), iv.Ticks, string(rec.Table), rec.Repeat)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// CreateReservation inserts the reservation after checking, inside one
// transaction, that the interval is still free. Overlap with any
// reservation, same-day event or daily repeating event on the same
// table yields ErrSlotTaken.
func (s *Store) CreateReservation(ctx context.Context, r models.Reservation) (*models.Reservation, error) {
	iv, err := r.ResolveInterval()
	if err != nil {
		return nil, err
	}
	end := int(iv.Start) + iv.Ticks

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var conflicts int
	err = tx.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM reservations
			 WHERE date = ? AND table_id = ? AND start_tick < ? AND start_tick + duration_ticks > ?)
			+
			(SELECT COUNT(*) FROM events
			 WHERE repeat = '' AND date = ? AND table_id = ? AND start_tick < ? AND start_tick + duration_ticks > ?)
			+
			(SELECT COUNT(*) FROM events
			 WHERE repeat = 'daily' AND table_id = ? AND start_tick < ? AND start_tick + duration_ticks > ?)`,
		string(iv.Date), string(r.Table), end, int(iv.Start),
		string(iv.Date), string(r.Table), end, int(iv.Start),
		string(r.Table), end, int(iv.Start),
	).Scan(&conflicts)
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	if conflicts > 0 {
		return nil, ErrSlotTaken
	}

	starters, err := json.Marshal(r.Starters)
	if err != nil {
		return nil, fmt.Errorf("encode starters: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (date, start_tick, duration_ticks, table_id, ppl, starters, phone, address, external_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(iv.Date), int(iv.Start), iv.Ticks, string(r.Table),
		r.People, string(starters), r.Phone, r.Address, r.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	created := r
	created.ID = id
	created.CreatedAt = time.Now()
	s.logger.Info().
		Int64("id", id).
		Str("date", r.Date).
		Str("hour", r.Hour).
		Str("table", string(r.Table)).
		Msg("reservation created")
	return &created, nil
}

// ReservationDetails returns full reservations in the window, newest
// day first not required: ordered by date then start.
func (s *Store) ReservationDetails(ctx context.Context, w slot.Window) ([]models.Reservation, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, date, start_tick, duration_ticks, table_id, ppl, starters, phone, address, external_id, created_at
		 FROM reservations WHERE date >= ? AND date <= ? ORDER BY date, start_tick`,
		string(w.Min), string(w.Max))
	if err != nil {
		return nil, fmt.Errorf("query reservation details: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var (
			r        models.Reservation
			start    int
			ticks    int
			table    string
			starters sql.NullString
			external sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Date, &start, &ticks, &table,
			&r.People, &starters, &r.Phone, &r.Address, &external, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Hour = slot.Tick(start).String()
		r.Duration = float64(ticks) / slot.TicksPerHour
		r.Table = models.ParseTableID(table)
		if starters.Valid && starters.String != "" {
			_ = json.Unmarshal([]byte(starters.String), &r.Starters)
		}
		r.ExternalID = external.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snapshot assembles the three record batches for the window, the
// authoritative occupancy source returned to clients.
func (s *Store) Snapshot(ctx context.Context, w slot.Window) (models.Batches, error) {
	var (
		batches models.Batches
		err     error
	)
	if batches.Bookings, err = s.ReservationsInWindow(ctx, w); err != nil {
		return batches, err
	}
	if batches.EventsCurrent, err = s.EventsInWindow(ctx, w); err != nil {
		return batches, err
	}
	if batches.EventsRepeat, err = s.RepeatingEvents(ctx); err != nil {
		return batches, err
	}
	return batches, nil
}

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	var records []models.Record
	for rows.Next() {
		var (
			rec   models.Record
			start int
			ticks int
			table string
		)
		if err := rows.Scan(&rec.ID, &rec.Date, &start, &ticks, &table); err != nil {
			return nil, err
		}
		rec.Hour = slot.Tick(start).String()
		rec.Duration = float64(ticks) / slot.TicksPerHour
		rec.Table = models.ParseTableID(table)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}
