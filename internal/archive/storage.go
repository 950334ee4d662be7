package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/platefull/jobqueue/internal/queue"
	"github.com/platefull/jobqueue/shared/postgresql"
)

const recordTimeout = 5 * time.Second

// EventRecord is one execution outcome row in the job_events table.
type EventRecord struct {
	EventID    string    `db:"event_id" json:"event_id"`
	JobID      string    `db:"job_id" json:"job_id"`
	JobType    string    `db:"job_type" json:"job_type"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	Outcome    string    `db:"outcome" json:"outcome"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	Usage      []byte    `db:"usage" json:"usage,omitempty"`
	ErrorMsg   string    `db:"error_message" json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Storage persists execution outcome events to PostgreSQL. It implements
// queue.EventSink, so terminal outcomes and usage/cost facts survive the
// process while the in-memory queue core stays ephemeral.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates an archive over the given PostgreSQL client.
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.DB(),
		logger: logger,
	}
}

// Record implements queue.EventSink. Called from the stats collector's
// drain goroutine, never from a worker, so a slow insert delays only other
// events. Failures are logged and dropped; the archive is best effort.
func (s *Storage) Record(ev queue.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var usage []byte
	if ev.Usage != nil {
		var err error
		usage, err = json.Marshal(ev.Usage)
		if err != nil {
			s.logger.Warn("Failed to marshal usage record",
				slog.String("job_id", ev.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	rec := &EventRecord{
		EventID:    uuid.New().String(),
		JobID:      ev.JobID,
		JobType:    string(ev.JobType),
		OwnerID:    ev.OwnerID,
		Outcome:    ev.Outcome,
		DurationMS: ev.Duration.Milliseconds(),
		Usage:      usage,
		ErrorMsg:   ev.Error,
		CreatedAt:  time.Now(),
	}

	if err := s.InsertEvent(ctx, rec); err != nil {
		s.logger.Error("Failed to archive job event",
			slog.String("job_id", ev.JobID),
			slog.String("outcome", ev.Outcome),
			slog.String("error", err.Error()),
		)
	}
}

// InsertEvent writes one event row.
func (s *Storage) InsertEvent(ctx context.Context, rec *EventRecord) error {
	query := `
		INSERT INTO job_events (
			event_id, job_id, job_type, owner_id,
			outcome, duration_ms, usage, error_message, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		rec.EventID,
		rec.JobID,
		rec.JobType,
		rec.OwnerID,
		rec.Outcome,
		rec.DurationMS,
		rec.Usage,
		rec.ErrorMsg,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job event: %w", err)
	}

	return nil
}

// EventFilter narrows and pages ListEvents results.
type EventFilter struct {
	OwnerID  string
	JobType  string
	Outcome  string
	PageSize int
	Cursor   *EventCursor
}

// EventCursor is the keyset position for event pagination.
type EventCursor struct {
	CreatedAt time.Time
	EventID   string
}

// ListEvents returns up to PageSize+1 events newest first; the extra row
// tells the caller whether a next page exists.
func (s *Storage) ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	query := `
		SELECT
			event_id, job_id, job_type, owner_id,
			outcome, duration_ms, usage, error_message, created_at
		FROM job_events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Outcome != "" {
		query += fmt.Sprintf(" AND outcome = $%d", argIdx)
		args = append(args, filter.Outcome)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, event_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.EventID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, event_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var events []EventRecord
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}

	return events, nil
}
