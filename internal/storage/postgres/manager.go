package postgres

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
)

// Manager implements the StorageManager interface for a direct Postgres connection
type Manager struct {
	db     *DB
	story  interfaces.AgentStoryStorage
	jobLog interfaces.JobLogStorage
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewManager creates a new Postgres storage manager
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (interfaces.StorageManager, error) {
	db, err := NewDB(ctx, logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		story:  NewAgentStoryStorage(db, logger),
		jobLog: NewJobLogStorage(db, logger),
		kv:     NewKVStorage(db, logger),
		logger: logger,
	}

	logger.Info().Bool("auto_migrate", config.AutoMigrate).Msg("Postgres storage manager initialized")

	return manager, nil
}

// AgentStoryStorage returns the agent story storage interface
func (m *Manager) AgentStoryStorage() interfaces.AgentStoryStorage {
	return m.story
}

// JobLogStorage returns the JobLog storage interface
func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLog
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the connection pool
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
