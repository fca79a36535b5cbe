package models

import "time"

// JobLogStatus is the state of a background job log
type JobLogStatus string

const (
	JobLogStatusRunning   JobLogStatus = "running"
	JobLogStatusCompleted JobLogStatus = "completed"
	JobLogStatusFailed    JobLogStatus = "failed"
)

// Job names recorded in background job logs
const (
	JobNameAnalyzeStory = "analyze-story"
)

// Log levels used in job log entries
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// BackgroundJobLog is the diagnostic trail of one background invocation.
// It is best-effort and never authoritative for the job outcome.
type BackgroundJobLog struct {
	ID           int64                  `json:"id"`
	JobName      string                 `json:"job_name" badgerhold:"index"`
	Status       JobLogStatus           `json:"status"`
	TotalItems   int                    `json:"total_items"`
	SuccessCount int                    `json:"success_count"`
	ErrorCount   int                    `json:"error_count"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	LogEntries   []JobLogEntry          `json:"log_entries"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// JobLogEntry is a single progress line appended to a background job log
type JobLogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Emiten    string                 `json:"emiten,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// JobLogUpdate closes (or amends) a background job log.
// Zero-valued optional fields are left untouched.
type JobLogUpdate struct {
	Status       JobLogStatus
	SuccessCount *int
	ErrorCount   *int
	ErrorMessage string
	Metadata     map[string]interface{}
}

// Apply writes the update onto a log in place
func (u JobLogUpdate) Apply(log *BackgroundJobLog, now time.Time) {
	if u.Status != "" {
		log.Status = u.Status
		if u.Status != JobLogStatusRunning {
			completed := now
			log.CompletedAt = &completed
		}
	}
	if u.SuccessCount != nil {
		log.SuccessCount = *u.SuccessCount
	}
	if u.ErrorCount != nil {
		log.ErrorCount = *u.ErrorCount
	}
	if u.ErrorMessage != "" {
		log.ErrorMessage = u.ErrorMessage
	}
	if u.Metadata != nil {
		log.Metadata = u.Metadata
	}
}

// Fields returns the update as a column map for the REST and SQL backends
func (u JobLogUpdate) Fields(now time.Time) map[string]interface{} {
	fields := map[string]interface{}{}
	if u.Status != "" {
		fields["status"] = string(u.Status)
		if u.Status != JobLogStatusRunning {
			fields["completed_at"] = now.UTC().Format(time.RFC3339Nano)
		}
	}
	if u.SuccessCount != nil {
		fields["success_count"] = *u.SuccessCount
	}
	if u.ErrorCount != nil {
		fields["error_count"] = *u.ErrorCount
	}
	if u.ErrorMessage != "" {
		fields["error_message"] = u.ErrorMessage
	}
	if u.Metadata != nil {
		fields["metadata"] = u.Metadata
	}
	return fields
}
