package interfaces

import (
	"context"
)

// GroundingOptions configures a grounded generation request
type GroundingOptions struct {
	// EnableWebSearch attaches the provider's web search tool to the request
	EnableWebSearch bool

	// ThinkingLevel is the provider thinking effort: MINIMAL, LOW, MEDIUM or HIGH
	ThinkingLevel string
}

// GroundingCitation is one web reference returned in grounding metadata.
// URI may be empty; callers decide whether such entries are usable.
type GroundingCitation struct {
	Title string
	URI   string
}

// GroundedAnswer is the free-text answer plus citation metadata
type GroundedAnswer struct {
	Text          string
	Citations     []GroundingCitation
	SearchQueries []string
	SupportCount  int
	Model         string
}

// GroundedSearchService generates search-grounded answers from a language model.
type GroundedSearchService interface {
	// IsConfigured reports whether an API credential is available.
	// Callers check this before issuing a request.
	IsConfigured(ctx context.Context) bool

	// GenerateGroundedAnswer issues exactly one generation call for the prompt.
	// It does not retry.
	GenerateGroundedAnswer(ctx context.Context, prompt string, opts GroundingOptions) (*GroundedAnswer, error)
}
