package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/storyagent/internal/models"
)

// ErrNotFound is returned when a record does not exist in the backing store
var ErrNotFound = errors.New("record not found")

// AgentStoryStorage - interface for story analysis result persistence
type AgentStoryStorage interface {
	// CreateAgentStory inserts a pending record for the emiten and returns it with its id
	CreateAgentStory(ctx context.Context, emiten string) (*models.AgentStory, error)

	// UpdateAgentStory applies one write to the record. The write is atomic:
	// status, result fields and error message land together or not at all.
	UpdateAgentStory(ctx context.Context, id int64, update models.AgentStoryUpdate) error

	GetAgentStory(ctx context.Context, id int64) (*models.AgentStory, error)

	// ListAgentStories returns newest-first records, optionally filtered by emiten
	ListAgentStories(ctx context.Context, emiten string, limit int) ([]*models.AgentStory, error)
}

// JobLogStorage - interface for background job diagnostic logs
type JobLogStorage interface {
	CreateJobLog(ctx context.Context, jobName string, totalItems int) (*models.BackgroundJobLog, error)
	AppendJobLogEntry(ctx context.Context, jobID int64, entry models.JobLogEntry) error
	UpdateJobLog(ctx context.Context, jobID int64, update models.JobLogUpdate) error
	GetJobLog(ctx context.Context, jobID int64) (*models.BackgroundJobLog, error)
	ListJobLogs(ctx context.Context, limit int) ([]*models.BackgroundJobLog, error)
}

// StorageManager - interface for managing all storage backends
type StorageManager interface {
	AgentStoryStorage() AgentStoryStorage
	JobLogStorage() JobLogStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
