package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a correlation id for one worker invocation
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewRequestID generates an id for an inbound HTTP request
func NewRequestID() string {
	return uuid.New().String()
}
