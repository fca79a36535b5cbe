package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

const agentStoryColumns = `id, emiten, status, matriks_story, swot_analysis, checklist_katalis,
	strategi_trading, keystat_signal, kesimpulan, sources, error_message, created_at, updated_at`

// AgentStoryStorage implements the AgentStoryStorage interface over SQL
type AgentStoryStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewAgentStoryStorage creates a new AgentStoryStorage instance
func NewAgentStoryStorage(db *DB, logger arbor.ILogger) interfaces.AgentStoryStorage {
	return &AgentStoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AgentStoryStorage) CreateAgentStory(ctx context.Context, emiten string) (*models.AgentStory, error) {
	row := s.db.pool.QueryRow(ctx, `
		INSERT INTO agent_stories (emiten, status)
		VALUES ($1, $2)
		RETURNING `+agentStoryColumns,
		strings.ToUpper(strings.TrimSpace(emiten)),
		string(models.StoryStatusPending),
	)

	story, err := scanAgentStory(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert agent story: %w", err)
	}
	return story, nil
}

// UpdateAgentStory issues one UPDATE statement carrying every column of the write
func (s *AgentStoryStorage) UpdateAgentStory(ctx context.Context, id int64, update models.AgentStoryUpdate) error {
	sets := []string{"status = $2", "updated_at = now()"}
	args := []interface{}{id, string(update.Status)}

	addJSON := func(column string, value interface{}) error {
		encoded, err := jsonParam(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", column, err)
		}
		args = append(args, encoded)
		sets = append(sets, fmt.Sprintf("%s = $%d::jsonb", column, len(args)))
		return nil
	}
	addText := func(column string, value string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if r := update.Result; r != nil {
		for _, col := range []struct {
			name  string
			value interface{}
		}{
			{"matriks_story", r.MatriksStory},
			{"swot_analysis", r.SWOTAnalysis},
			{"checklist_katalis", r.ChecklistKatalis},
			{"strategi_trading", r.StrategiTrading},
			{"sources", r.Sources},
		} {
			if err := addJSON(col.name, col.value); err != nil {
				return err
			}
		}
		addText("keystat_signal", r.KeystatSignal)
		addText("kesimpulan", r.Kesimpulan)
	}
	if update.ErrorMessage != nil {
		addText("error_message", *update.ErrorMessage)
	}

	query := "UPDATE agent_stories SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update agent story %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *AgentStoryStorage) GetAgentStory(ctx context.Context, id int64) (*models.AgentStory, error) {
	row := s.db.pool.QueryRow(ctx, `SELECT `+agentStoryColumns+` FROM agent_stories WHERE id = $1`, id)

	story, err := scanAgentStory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent story %d: %w", id, err)
	}
	return story, nil
}

func (s *AgentStoryStorage) ListAgentStories(ctx context.Context, emiten string, limit int) ([]*models.AgentStory, error) {
	query := `SELECT ` + agentStoryColumns + ` FROM agent_stories`
	var args []interface{}

	if code := strings.ToUpper(strings.TrimSpace(emiten)); code != "" {
		args = append(args, code)
		query += fmt.Sprintf(" WHERE emiten = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent stories: %w", err)
	}
	defer rows.Close()

	stories := []*models.AgentStory{}
	for rows.Next() {
		story, err := scanAgentStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent story: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list agent stories: %w", err)
	}
	return stories, nil
}

func scanAgentStory(row pgx.Row) (*models.AgentStory, error) {
	var (
		story                                       models.AgentStory
		status                                      string
		matriks, swot, checklist, strategi, sources []byte
		keystatSignal, kesimpulan, errorMessage     *string
	)

	if err := row.Scan(
		&story.ID, &story.Emiten, &status,
		&matriks, &swot, &checklist, &strategi,
		&keystatSignal, &kesimpulan, &sources, &errorMessage,
		&story.CreatedAt, &story.UpdatedAt,
	); err != nil {
		return nil, err
	}

	story.Status = models.StoryStatus(status)
	for _, col := range []struct {
		raw []byte
		dst interface{}
	}{
		{matriks, &story.MatriksStory},
		{swot, &story.SWOTAnalysis},
		{checklist, &story.ChecklistKatalis},
		{strategi, &story.StrategiTrading},
		{sources, &story.Sources},
	} {
		if err := decodeJSON(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	if keystatSignal != nil {
		story.KeystatSignal = *keystatSignal
	}
	if kesimpulan != nil {
		story.Kesimpulan = *kesimpulan
	}
	if errorMessage != nil {
		story.ErrorMessage = *errorMessage
	}

	return &story, nil
}
