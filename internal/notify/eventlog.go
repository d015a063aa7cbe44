// Package notify records publish/submission/correction events in an
// append-only log. Downstream dispatchers (mail, badge counts, document
// rendering) consume the log; this service only writes and lists it.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

const (
	EventFormPublished      = "form.published"
	EventSubmissionReceived = "submission.received"
	EventCorrectionRecorded = "correction.recorded"
)

type Event struct {
	Offset    int64  `json:"offset"`
	Type      string `json:"type"`
	Key       string `json:"key"` // natural key: form or submission id
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// Sink accepts events. A nil Sink is valid and drops everything.
type Sink interface {
	Append(ctx context.Context, typ, key, dataJSON string) error
}

// Emit marshals data and appends, tolerating a nil sink. Event delivery is
// best-effort: a failed append is logged, never propagated into the request
// that produced it.
func Emit(ctx context.Context, sink Sink, typ, key string, data any) {
	if sink == nil {
		return
	}
	buf, err := json.Marshal(data)
	if err != nil {
		log.Printf("notify: marshal %s %s: %v", typ, key, err)
		return
	}
	if err := sink.Append(ctx, typ, key, string(buf)); err != nil {
		log.Printf("notify: append %s %s: %v", typ, key, err)
	}
}

// EventRepo is the SQL-backed Sink.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, typ, key, dataJSON string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, dataJSON, time.Now().Unix())
	return err
}

// Recent returns the newest events, most recent first.
func (r *EventRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, data, created_at FROM event_log ORDER BY "offset" DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
