package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/copyfx/mirror/internal/events"
	"github.com/copyfx/mirror/internal/metrics"
	"github.com/copyfx/mirror/pkg/logger"
)

// Journal is an append-only sqlite audit log of every emitted event and its
// delivery outcome. It is diagnostics, not state: the engine never reads it
// back, and a write failure is logged and counted, nothing more.
type Journal struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS event_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	emitted_at TEXT NOT NULL,
	event_type TEXT NOT NULL,
	ticket INTEGER NOT NULL,
	payload TEXT NOT NULL,
	delivered INTEGER NOT NULL,
	deliver_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_event_log_ticket ON event_log(ticket);
`

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	// sqlite tolerates one writer; keep the pool at a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init journal schema")
	}
	return &Journal{db: db}, nil
}

// Record appends one emitted event with its delivery outcome.
func (j *Journal) Record(ev events.Event, deliverErr error) {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		metrics.JournalErrors.Add(1)
		logger.Errorf("journal: encode payload: %v", err)
		return
	}
	delivered := 1
	errText := sql.NullString{}
	if deliverErr != nil {
		delivered = 0
		errText = sql.NullString{String: deliverErr.Error(), Valid: true}
	}
	_, err = j.db.Exec(
		`INSERT INTO event_log (emitted_at, event_type, ticket, payload, delivered, deliver_error)
		 VALUES (?,?,?,?,?,?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(ev.Type()), ev.Ticket(), string(payload), delivered, errText,
	)
	if err != nil {
		metrics.JournalErrors.Add(1)
		logger.Errorf("journal: insert: %v", err)
	}
}

// Entry is one journal row, as served by the ops surface.
type Entry struct {
	ID           int64             `json:"id"`
	EmittedAt    string            `json:"emitted_at"`
	EventType    string            `json:"event_type"`
	Ticket       int64             `json:"ticket"`
	Payload      map[string]string `json:"payload"`
	Delivered    bool              `json:"delivered"`
	DeliverError string            `json:"deliver_error,omitempty"`
}

// Recent returns the newest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, emitted_at, event_type, ticket, payload, delivered, deliver_error
		 FROM event_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query journal")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			payload string
			deliv   int
			errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EmittedAt, &e.EventType, &e.Ticket, &payload, &deliv, &errText); err != nil {
			return nil, errors.Wrap(err, "scan journal row")
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			e.Payload = map[string]string{"raw": payload}
		}
		e.Delivered = deliv == 1
		e.DeliverError = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
