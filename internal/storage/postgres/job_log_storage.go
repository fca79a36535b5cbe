package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

const jobLogColumns = `id, job_name, status, total_items, success_count, error_count,
	error_message, metadata, log_entries, started_at, completed_at`

// JobLogStorage implements the JobLogStorage interface over SQL
type JobLogStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *DB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobLogStorage) CreateJobLog(ctx context.Context, jobName string, totalItems int) (*models.BackgroundJobLog, error) {
	row := s.db.pool.QueryRow(ctx, `
		INSERT INTO background_job_logs (job_name, status, total_items)
		VALUES ($1, $2, $3)
		RETURNING `+jobLogColumns,
		jobName, string(models.JobLogStatusRunning), totalItems,
	)

	log, err := scanJobLog(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job log: %w", err)
	}
	return log, nil
}

func (s *JobLogStorage) AppendJobLogEntry(ctx context.Context, jobID int64, entry models.JobLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	encoded, err := jsonParam(entry)
	if err != nil {
		return fmt.Errorf("failed to encode job log entry: %w", err)
	}

	tag, err := s.db.pool.Exec(ctx, `
		UPDATE background_job_logs
		   SET log_entries = COALESCE(log_entries, '[]'::jsonb) || jsonb_build_array($2::jsonb)
		 WHERE id = $1`,
		jobID, encoded,
	)
	if err != nil {
		return fmt.Errorf("failed to append job log entry %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *JobLogStorage) UpdateJobLog(ctx context.Context, jobID int64, update models.JobLogUpdate) error {
	var sets []string
	args := []interface{}{jobID}
	add := func(expr string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if update.Status != "" {
		add("status = $%d", string(update.Status))
		if update.Status != models.JobLogStatusRunning {
			sets = append(sets, "completed_at = now()")
		}
	}
	if update.SuccessCount != nil {
		add("success_count = $%d", *update.SuccessCount)
	}
	if update.ErrorCount != nil {
		add("error_count = $%d", *update.ErrorCount)
	}
	if update.ErrorMessage != "" {
		add("error_message = $%d", update.ErrorMessage)
	}
	if update.Metadata != nil {
		encoded, err := jsonParam(update.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode job log metadata: %w", err)
		}
		add("metadata = $%d::jsonb", encoded)
	}
	if len(sets) == 0 {
		return nil
	}

	tag, err := s.db.pool.Exec(ctx, "UPDATE background_job_logs SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("failed to update job log %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *JobLogStorage) GetJobLog(ctx context.Context, jobID int64) (*models.BackgroundJobLog, error) {
	row := s.db.pool.QueryRow(ctx, `SELECT `+jobLogColumns+` FROM background_job_logs WHERE id = $1`, jobID)

	log, err := scanJobLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job log %d: %w", jobID, err)
	}
	return log, nil
}

func (s *JobLogStorage) ListJobLogs(ctx context.Context, limit int) ([]*models.BackgroundJobLog, error) {
	query := `SELECT ` + jobLogColumns + ` FROM background_job_logs ORDER BY started_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $1"
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.BackgroundJobLog{}
	for rows.Next() {
		log, err := scanJobLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	return logs, nil
}

func scanJobLog(row pgx.Row) (*models.BackgroundJobLog, error) {
	var (
		log               models.BackgroundJobLog
		status            string
		errorMessage      *string
		metadata, entries []byte
	)

	if err := row.Scan(
		&log.ID, &log.JobName, &status, &log.TotalItems, &log.SuccessCount, &log.ErrorCount,
		&errorMessage, &metadata, &entries, &log.StartedAt, &log.CompletedAt,
	); err != nil {
		return nil, err
	}

	log.Status = models.JobLogStatus(status)
	if errorMessage != nil {
		log.ErrorMessage = *errorMessage
	}
	if err := decodeJSON(metadata, &log.Metadata); err != nil {
		return nil, err
	}
	log.LogEntries = []models.JobLogEntry{}
	if err := decodeJSON(entries, &log.LogEntries); err != nil {
		return nil, err
	}
	return &log, nil
}
