package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultLimit caps Recent when the caller asks for zero or fewer events.
const DefaultLimit = 50

// Event is one journalled operation.
type Event struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	Section    string    `json:"section,omitempty"`
	CarID      string    `json:"car_id,omitempty"`
	Color      string    `json:"color,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StackCount int       `json:"stack_count"`
	QueueCount int       `json:"queue_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Journal is an append-only SQLite log of parking operations.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	// One connection keeps the pragmas in effect and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: pragma: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			section TEXT NOT NULL DEFAULT '',
			car_id TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			stack_count INTEGER NOT NULL,
			queue_count INTEGER NOT NULL,
			occurred_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record stores e, filling in ID and OccurredAt when they are empty.
func (j *Journal) Record(ctx context.Context, e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = j.now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, operation, section, car_id, color, success, error, stack_count, queue_count, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Operation, e.Section, e.CarID, e.Color, e.Success, e.Error,
		e.StackCount, e.QueueCount, e.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return Event{}, fmt.Errorf("journal: record: %w", err)
	}
	return e, nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, operation, section, car_id, color, success, error, stack_count, queue_count, occurred_at
		 FROM events ORDER BY occurred_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			e          Event
			occurredAt int64
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Section, &e.CarID, &e.Color, &e.Success,
			&e.Error, &e.StackCount, &e.QueueCount, &occurredAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.OccurredAt = time.UnixMilli(occurredAt).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return events, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
