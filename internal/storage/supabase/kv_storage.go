package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
)

const profileSettingsTable = "profile_settings"

// KVStorage implements the KeyValueStorage interface on the profile_settings table
type KVStorage struct {
	client *Client
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(client *Client, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		client: client,
		logger: logger,
	}
}

func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var rows []interfaces.KeyValuePair
	params := map[string]string{
		"select": "key,value,created_at,updated_at",
		"key":    eq(key),
		"limit":  "1",
	}
	if err := s.client.Select(ctx, profileSettingsTable, params, &rows); err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	if len(rows) == 0 {
		return "", interfaces.ErrKeyNotFound
	}
	return rows[0].Value, nil
}

// Set upserts on the key column; created_at keeps its column default on conflict
func (s *KVStorage) Set(ctx context.Context, key string, value string) (*interfaces.KeyValuePair, error) {
	row := map[string]interface{}{
		"key":        key,
		"value":      value,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	var rows []interfaces.KeyValuePair
	if err := s.client.Upsert(ctx, profileSettingsTable, "key", row, &rows); err != nil {
		return nil, fmt.Errorf("failed to set key/value: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("failed to set key/value: no row returned")
	}
	return &rows[0], nil
}

func (s *KVStorage) Delete(ctx context.Context, key string) error {
	var rows []interfaces.KeyValuePair
	if err := s.client.Delete(ctx, profileSettingsTable, map[string]string{"key": eq(key)}, &rows); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if len(rows) == 0 {
		return interfaces.ErrKeyNotFound
	}
	return nil
}

func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	var rows []interfaces.KeyValuePair
	params := map[string]string{
		"select": "key,value,created_at,updated_at",
		"order":  "updated_at.desc",
	}
	if err := s.client.Select(ctx, profileSettingsTable, params, &rows); err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	return rows, nil
}
