// Package history keeps an audit log of controller decisions in sqlite. Nothing in it is read
// back into the control path.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

type Kind string

const (
	KindModeChange    Kind = "mode_change"
	KindHeatPumpFault Kind = "heat_pump_fault"
	KindSystemSwitch  Kind = "system_switch"
)

type Event struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

const schema = `CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	at TEXT NOT NULL,
	kind TEXT NOT NULL,
	from_state TEXT NOT NULL DEFAULT '',
	to_state TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_at ON events (at);`

type Store struct {
	db *sql.DB
}

// Open opens or creates the event log at path. ":memory:" gives a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores e, filling in an id and timestamp when they are missing.
func (s *Store) Record(e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return e, fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO events (id, at, kind, from_state, to_state, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.UTC().Format(time.RFC3339Nano), string(e.Kind), e.From, e.To, e.Detail)
	if err != nil {
		tx.Rollback()
		return e, fmt.Errorf("insert event: %w", err)
	}
	return e, tx.Commit()
}

// Recent returns up to n events, newest first.
func (s *Store) Recent(n int) ([]Event, error) {
	rows, err := s.db.Query(`SELECT id, at, kind, from_state, to_state, detail FROM events ORDER BY at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var at, kind string
		if err := rows.Scan(&e.ID, &at, &kind, &e.From, &e.To, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = Kind(kind)
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("event %s has bad timestamp %q: %w", e.ID, at, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ModeChanged and HeatPumpFault let a Store observe the output controller. Storage errors are
// logged, not returned.
func (s *Store) ModeChanged(from, to model.OutputMode, now time.Time) {
	s.recordOrLog(Event{At: now, Kind: KindModeChange, From: from.String(), To: to.String()})
}

func (s *Store) HeatPumpFault(mode model.HeatPumpMode, err error, now time.Time) {
	e := Event{At: now, Kind: KindHeatPumpFault, To: mode.String()}
	if err != nil {
		e.Detail = err.Error()
	}
	s.recordOrLog(e)
}

func (s *Store) SystemSwitched(on bool, now time.Time) {
	from, to := "on", "off"
	if on {
		from, to = to, from
	}
	s.recordOrLog(Event{At: now, Kind: KindSystemSwitch, From: from, To: to})
}

func (s *Store) recordOrLog(e Event) {
	if _, err := s.Record(e); err != nil {
		log.Error().Err(err).Str("kind", string(e.Kind)).Msg("Failed to record history event")
	}
}
