package story

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

// jobLogTracker carries the job-log handle through one run. A zero jobID
// means the log could not be created and every later call is a no-op.
// No method returns an error: job-log failures are logged and dropped.
type jobLogTracker struct {
	store  interfaces.JobLogStorage
	logger arbor.ILogger
	emiten string
	jobID  int64
}

// startJobLog creates the log and its first entry
func startJobLog(ctx context.Context, store interfaces.JobLogStorage, logger arbor.ILogger, emiten string) *jobLogTracker {
	t := &jobLogTracker{store: store, logger: logger, emiten: emiten}
	if store == nil {
		return t
	}

	t.guard("create", func() error {
		log, err := store.CreateJobLog(ctx, models.JobNameAnalyzeStory, 1)
		if err != nil {
			return err
		}
		t.jobID = log.ID
		return nil
	})

	t.info(ctx, "Starting AI Story Analysis", nil)
	return t
}

// ID returns the job log id, zero when no log exists
func (t *jobLogTracker) ID() int64 {
	return t.jobID
}

func (t *jobLogTracker) info(ctx context.Context, message string, details map[string]interface{}) {
	t.append(ctx, models.LogLevelInfo, message, details)
}

func (t *jobLogTracker) errorEntry(ctx context.Context, message string, details map[string]interface{}) {
	t.append(ctx, models.LogLevelError, message, details)
}

func (t *jobLogTracker) append(ctx context.Context, level, message string, details map[string]interface{}) {
	if t.jobID == 0 {
		return
	}
	t.guard("append", func() error {
		return t.store.AppendJobLogEntry(ctx, t.jobID, models.JobLogEntry{
			Level:   level,
			Message: message,
			Emiten:  t.emiten,
			Details: details,
		})
	})
}

func (t *jobLogTracker) complete(ctx context.Context, metadata map[string]interface{}) {
	success := 1
	t.close(ctx, models.JobLogUpdate{
		Status:       models.JobLogStatusCompleted,
		SuccessCount: &success,
		Metadata:     metadata,
	})
}

func (t *jobLogTracker) fail(ctx context.Context, message string) {
	t.close(ctx, models.JobLogUpdate{
		Status:       models.JobLogStatusFailed,
		ErrorMessage: message,
	})
}

func (t *jobLogTracker) close(ctx context.Context, update models.JobLogUpdate) {
	if t.jobID == 0 {
		return
	}
	t.guard("close", func() error {
		return t.store.UpdateJobLog(ctx, t.jobID, update)
	})
}

// guard runs one job-log call, swallowing errors and panics
func (t *jobLogTracker) guard(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn().
				Str("op", op).
				Int64("job_log_id", t.jobID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Job log call panicked")
		}
	}()

	if err := fn(); err != nil {
		t.logger.Warn().
			Err(err).
			Str("op", op).
			Int64("job_log_id", t.jobID).
			Str("emiten", t.emiten).
			Msg("Job log write failed")
	}
}
