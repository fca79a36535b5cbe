package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

const agentStorySequence = "agent_stories"

// AgentStoryStorage implements the AgentStoryStorage interface for Badger
type AgentStoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAgentStoryStorage creates a new AgentStoryStorage instance
func NewAgentStoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AgentStoryStorage {
	return &AgentStoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AgentStoryStorage) CreateAgentStory(ctx context.Context, emiten string) (*models.AgentStory, error) {
	id, err := s.db.NextID(agentStorySequence)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	story := &models.AgentStory{
		ID:        id,
		Emiten:    strings.ToUpper(strings.TrimSpace(emiten)),
		Status:    models.StoryStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.Store().Insert(id, story); err != nil {
		return nil, fmt.Errorf("failed to insert agent story: %w", err)
	}

	return story, nil
}

// UpdateAgentStory reads and rewrites the record inside one badger transaction
func (s *AgentStoryStorage) UpdateAgentStory(ctx context.Context, id int64, update models.AgentStoryUpdate) error {
	store := s.db.Store()

	err := store.Badger().Update(func(tx *badger.Txn) error {
		var story models.AgentStory
		if err := store.TxGet(tx, id, &story); err != nil {
			return err
		}
		update.Apply(&story, time.Now())
		return store.TxUpdate(tx, id, &story)
	})

	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update agent story %d: %w", id, err)
	}
	return nil
}

func (s *AgentStoryStorage) GetAgentStory(ctx context.Context, id int64) (*models.AgentStory, error) {
	var story models.AgentStory
	err := s.db.Store().Get(id, &story)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent story %d: %w", id, err)
	}
	return &story, nil
}

func (s *AgentStoryStorage) ListAgentStories(ctx context.Context, emiten string, limit int) ([]*models.AgentStory, error) {
	var query *badgerhold.Query
	if code := strings.ToUpper(strings.TrimSpace(emiten)); code != "" {
		query = badgerhold.Where("Emiten").Eq(code).Index("Emiten")
	} else {
		query = badgerhold.Where("ID").Gt(int64(0))
	}
	// Ids are allocated in insertion order, so id order is creation order
	query = query.SortBy("ID").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var stories []models.AgentStory
	if err := s.db.Store().Find(&stories, query); err != nil {
		return nil, fmt.Errorf("failed to list agent stories: %w", err)
	}

	result := make([]*models.AgentStory, 0, len(stories))
	for i := range stories {
		result = append(result, &stories[i])
	}
	return result, nil
}
