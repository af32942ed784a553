// Package history records fixture lifecycle events in SQLite so past
// launches can be listed after the process that ran them has exited.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/natsfixture/internal/events"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout has fixed-width fractional seconds so stored values sort
	// lexically in time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrInvalidEvent is returned by Record for events without an instance or type.
var ErrInvalidEvent = errors.New("event needs an instance and a type")

// Filter controls which events List returns.
type Filter struct {
	Instance string      // optional: exact instance name
	Type     events.Type // optional: exact event type
	Since    time.Time   // optional: events at or after this time
	Limit    int         // default 50, max 500
	Offset   int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []events.Event `json:"events"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// Repository stores and queries lifecycle events.
type Repository interface {
	Record(ctx context.Context, e *events.Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores events in the launch_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. A missing ID or time is filled in and written back.
func (r *SQLiteRepository) Record(ctx context.Context, e *events.Event) error {
	if e.Instance == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Time = e.Time.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO launch_events (id, instance, event_type, port, pid, version, duration_ms, error, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Instance, string(e.Type),
		e.Port, e.PID, e.Version,
		e.Duration.Milliseconds(), e.Error,
		e.Time.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting launch event: %w", err)
	}
	return nil
}

// List returns events matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if filter.Instance != "" {
		conditions = append(conditions, "instance = ?")
		args = append(args, filter.Instance)
	}
	if filter.Type != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM launch_events " + where //nolint:gosec // conditions are parameterised
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting launch events: %w", err)
	}

	query := "SELECT id, instance, event_type, port, pid, version, duration_ms, error, occurred_at FROM launch_events " + //nolint:gosec // conditions are parameterised
		where + " ORDER BY occurred_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying launch events: %w", err)
	}
	defer rows.Close()

	list := []events.Event{}
	for rows.Next() {
		var (
			e          events.Event
			typ        string
			durationMS int64
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &e.Instance, &typ, &e.Port, &e.PID, &e.Version,
			&durationMS, &e.Error, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning launch event: %w", err)
		}
		e.Type = events.Type(typ)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if e.Time, err = time.Parse(timeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing launch event timestamp %q: %w", occurredAt, err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating launch events: %w", err)
	}

	return &ListResult{
		Events: list,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Prune deletes events older than before and returns how many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM launch_events WHERE occurred_at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning launch events: %w", err)
	}
	return res.RowsAffected()
}

// Sink returns an events.Sink that records every event in repo.
func Sink(repo Repository) events.Sink {
	return events.SinkFunc(func(ctx context.Context, e events.Event) error {
		return repo.Record(ctx, &e)
	})
}
