package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	story  interfaces.AgentStoryStorage
	jobLog interfaces.JobLogStorage
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:     db,
		story:  NewAgentStoryStorage(db, logger),
		jobLog: NewJobLogStorage(db, logger),
		kv:     NewKVStorage(db, logger),
		logger: logger,
	}
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

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
