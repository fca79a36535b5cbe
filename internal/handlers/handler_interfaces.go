package handlers

import (
	"context"

	"github.com/ternarybob/storyagent/internal/services/story"
)

// StoryAnalyzer runs one story analysis for a pre-created record.
type StoryAnalyzer interface {
	Analyze(ctx context.Context, req story.Request) story.Response
}

// StoryQueue accepts analyses to run in the background.
type StoryQueue interface {
	Submit(req story.Request) error
}
