package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

const jobLogSequence = "background_job_logs"

// JobLogStorage implements the JobLogStorage interface for Badger.
// Entries are embedded in the log record and appended transactionally.
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobLogStorage) CreateJobLog(ctx context.Context, jobName string, totalItems int) (*models.BackgroundJobLog, error) {
	id, err := s.db.NextID(jobLogSequence)
	if err != nil {
		return nil, err
	}

	log := &models.BackgroundJobLog{
		ID:         id,
		JobName:    jobName,
		Status:     models.JobLogStatusRunning,
		TotalItems: totalItems,
		LogEntries: []models.JobLogEntry{},
		StartedAt:  time.Now(),
	}

	if err := s.db.Store().Insert(id, log); err != nil {
		return nil, fmt.Errorf("failed to insert job log: %w", err)
	}
	return log, nil
}

func (s *JobLogStorage) AppendJobLogEntry(ctx context.Context, jobID int64, entry models.JobLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return s.mutate(jobID, func(log *models.BackgroundJobLog) {
		log.LogEntries = append(log.LogEntries, entry)
	})
}

func (s *JobLogStorage) UpdateJobLog(ctx context.Context, jobID int64, update models.JobLogUpdate) error {
	return s.mutate(jobID, func(log *models.BackgroundJobLog) {
		update.Apply(log, time.Now())
	})
}

func (s *JobLogStorage) mutate(jobID int64, fn func(log *models.BackgroundJobLog)) error {
	store := s.db.Store()

	err := store.Badger().Update(func(tx *badger.Txn) error {
		var log models.BackgroundJobLog
		if err := store.TxGet(tx, jobID, &log); err != nil {
			return err
		}
		fn(&log)
		return store.TxUpdate(tx, jobID, &log)
	})

	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update job log %d: %w", jobID, err)
	}
	return nil
}

func (s *JobLogStorage) GetJobLog(ctx context.Context, jobID int64) (*models.BackgroundJobLog, error) {
	var log models.BackgroundJobLog
	err := s.db.Store().Get(jobID, &log)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job log %d: %w", jobID, err)
	}
	return &log, nil
}

func (s *JobLogStorage) ListJobLogs(ctx context.Context, limit int) ([]*models.BackgroundJobLog, error) {
	query := badgerhold.Where("ID").Gt(int64(0)).SortBy("ID").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []models.BackgroundJobLog
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}

	result := make([]*models.BackgroundJobLog, 0, len(logs))
	for i := range logs {
		result = append(result, &logs[i])
	}
	return result, nil
}
