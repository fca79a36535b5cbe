package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/storage/badger"
	"github.com/ternarybob/storyagent/internal/storage/postgres"
	"github.com/ternarybob/storyagent/internal/storage/supabase"
)

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch strings.ToLower(config.Storage.Type) {
	case "", "badger":
		return badger.NewManager(logger, &config.Storage.Badger)
	case "supabase":
		return supabase.NewManager(logger, &config.Storage.Supabase)
	case "postgres":
		return postgres.NewManager(context.Background(), logger, &config.Storage.Postgres)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected badger, supabase or postgres)", config.Storage.Type)
	}
}
