package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
)

// KVStorage implements the KeyValueStorage interface on the profile_settings table
type KVStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *DB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.pool.QueryRow(ctx, `SELECT value FROM profile_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

func (s *KVStorage) Set(ctx context.Context, key string, value string) (*interfaces.KeyValuePair, error) {
	var pair interfaces.KeyValuePair
	err := s.db.pool.QueryRow(ctx, `
		INSERT INTO profile_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		RETURNING key, value, created_at, updated_at`,
		key, value,
	).Scan(&pair.Key, &pair.Value, &pair.CreatedAt, &pair.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to set key/value: %w", err)
	}
	return &pair, nil
}

func (s *KVStorage) Delete(ctx context.Context, key string) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM profile_settings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrKeyNotFound
	}
	return nil
}

func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT key, value, created_at, updated_at FROM profile_settings ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	defer rows.Close()

	pairs := []interfaces.KeyValuePair{}
	for rows.Next() {
		var pair interfaces.KeyValuePair
		if err := rows.Scan(&pair.Key, &pair.Value, &pair.CreatedAt, &pair.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key/value pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}
