package supabase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

const agentStoriesTable = "agent_stories"

// AgentStoryStorage implements the AgentStoryStorage interface over PostgREST
type AgentStoryStorage struct {
	client *Client
	logger arbor.ILogger
}

// NewAgentStoryStorage creates a new AgentStoryStorage instance
func NewAgentStoryStorage(client *Client, logger arbor.ILogger) interfaces.AgentStoryStorage {
	return &AgentStoryStorage{
		client: client,
		logger: logger,
	}
}

func (s *AgentStoryStorage) CreateAgentStory(ctx context.Context, emiten string) (*models.AgentStory, error) {
	row := map[string]interface{}{
		"emiten": strings.ToUpper(strings.TrimSpace(emiten)),
		"status": string(models.StoryStatusPending),
	}

	var rows []models.AgentStory
	if err := s.client.Insert(ctx, agentStoriesTable, row, &rows); err != nil {
		return nil, fmt.Errorf("failed to insert agent story: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("failed to insert agent story: no row returned")
	}
	return &rows[0], nil
}

// UpdateAgentStory sends a single PATCH, so PostgREST applies all columns in one statement
func (s *AgentStoryStorage) UpdateAgentStory(ctx context.Context, id int64, update models.AgentStoryUpdate) error {
	fields := update.Fields()
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	var rows []models.AgentStory
	filters := map[string]string{"id": eq(id)}
	if err := s.client.Update(ctx, agentStoriesTable, filters, fields, &rows); err != nil {
		return fmt.Errorf("failed to update agent story %d: %w", id, err)
	}
	if len(rows) == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *AgentStoryStorage) GetAgentStory(ctx context.Context, id int64) (*models.AgentStory, error) {
	var rows []models.AgentStory
	params := map[string]string{
		"select": "*",
		"id":     eq(id),
		"limit":  "1",
	}
	if err := s.client.Select(ctx, agentStoriesTable, params, &rows); err != nil {
		return nil, fmt.Errorf("failed to get agent story %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &rows[0], nil
}

func (s *AgentStoryStorage) ListAgentStories(ctx context.Context, emiten string, limit int) ([]*models.AgentStory, error) {
	params := map[string]string{
		"select": "*",
		"order":  "created_at.desc,id.desc",
	}
	if code := strings.ToUpper(strings.TrimSpace(emiten)); code != "" {
		params["emiten"] = eq(code)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var rows []models.AgentStory
	if err := s.client.Select(ctx, agentStoriesTable, params, &rows); err != nil {
		return nil, fmt.Errorf("failed to list agent stories: %w", err)
	}

	result := make([]*models.AgentStory, 0, len(rows))
	for i := range rows {
		result = append(result, &rows[i])
	}
	return result, nil
}
