package supabase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

const (
	jobLogsTable = "background_job_logs"

	// appendEntryFunction appends to log_entries server side so concurrent
	// appends never overwrite each other
	appendEntryFunction = "append_background_job_log_entry"
)

// JobLogStorage implements the JobLogStorage interface over PostgREST
type JobLogStorage struct {
	client *Client
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(client *Client, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		client: client,
		logger: logger,
	}
}

func (s *JobLogStorage) CreateJobLog(ctx context.Context, jobName string, totalItems int) (*models.BackgroundJobLog, error) {
	row := map[string]interface{}{
		"job_name":    jobName,
		"status":      string(models.JobLogStatusRunning),
		"total_items": totalItems,
		"log_entries": []models.JobLogEntry{},
	}

	var rows []models.BackgroundJobLog
	if err := s.client.Insert(ctx, jobLogsTable, row, &rows); err != nil {
		return nil, fmt.Errorf("failed to insert job log: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("failed to insert job log: no row returned")
	}
	return &rows[0], nil
}

func (s *JobLogStorage) AppendJobLogEntry(ctx context.Context, jobID int64, entry models.JobLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	args := map[string]interface{}{
		"p_job_id": jobID,
		"p_entry":  entry,
	}
	if err := s.client.RPC(ctx, appendEntryFunction, args, nil); err != nil {
		return fmt.Errorf("failed to append job log entry %d: %w", jobID, err)
	}
	return nil
}

func (s *JobLogStorage) UpdateJobLog(ctx context.Context, jobID int64, update models.JobLogUpdate) error {
	fields := update.Fields(time.Now())
	if len(fields) == 0 {
		return nil
	}

	var rows []models.BackgroundJobLog
	filters := map[string]string{"id": eq(jobID)}
	if err := s.client.Update(ctx, jobLogsTable, filters, fields, &rows); err != nil {
		return fmt.Errorf("failed to update job log %d: %w", jobID, err)
	}
	if len(rows) == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *JobLogStorage) GetJobLog(ctx context.Context, jobID int64) (*models.BackgroundJobLog, error) {
	var rows []models.BackgroundJobLog
	params := map[string]string{
		"select": "*",
		"id":     eq(jobID),
		"limit":  "1",
	}
	if err := s.client.Select(ctx, jobLogsTable, params, &rows); err != nil {
		return nil, fmt.Errorf("failed to get job log %d: %w", jobID, err)
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &rows[0], nil
}

func (s *JobLogStorage) ListJobLogs(ctx context.Context, limit int) ([]*models.BackgroundJobLog, error) {
	params := map[string]string{
		"select": "*",
		"order":  "started_at.desc,id.desc",
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var rows []models.BackgroundJobLog
	if err := s.client.Select(ctx, jobLogsTable, params, &rows); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}

	result := make([]*models.BackgroundJobLog, 0, len(rows))
	for i := range rows {
		result = append(result, &rows[i])
	}
	return result, nil
}
