package supabase

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
)

// Manager implements the StorageManager interface against a Supabase project
type Manager struct {
	client *Client
	story  interfaces.AgentStoryStorage
	jobLog interfaces.JobLogStorage
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewManager creates a new Supabase storage manager
func NewManager(logger arbor.ILogger, config *common.SupabaseConfig) (interfaces.StorageManager, error) {
	if config.URL == "" || config.ServiceRoleKey == "" {
		return nil, fmt.Errorf("supabase storage requires url and service_role_key (SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY)")
	}

	client := NewClient(config.URL, config.ServiceRoleKey,
		WithSchema(config.Schema),
		WithTimeout(common.ParseDurationOr(config.Timeout, DefaultTimeout)),
		WithLogger(logger),
	)

	logger.Info().Str("url", config.URL).Str("schema", config.Schema).Msg("Supabase storage manager initialized")

	return newManager(client, logger), nil
}

func newManager(client *Client, logger arbor.ILogger) *Manager {
	return &Manager{
		client: client,
		story:  NewAgentStoryStorage(client, logger),
		jobLog: NewJobLogStorage(client, logger),
		kv:     NewKVStorage(client, logger),
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

// Close is a no-op; the HTTP client holds no persistent resources
func (m *Manager) Close() error {
	return nil
}
