package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/schemas"
)

const connectTimeout = 10 * time.Second

// DB wraps a pgx connection pool
type DB struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewDB opens a pool, pings it and applies the schema when auto_migrate is set
func NewDB(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (*DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres storage requires a dsn (STORYAGENT_POSTGRES_DSN)")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	db := &DB{pool: pool, logger: logger}

	if config.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Debug().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Postgres connection pool initialized")

	return db, nil
}

// Migrate applies the embedded schema
func (d *DB) Migrate(ctx context.Context) error {
	ddl, err := schemas.GetSchema(schemas.StorySchema)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	if _, err := d.pool.Exec(ctx, string(ddl)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	d.logger.Debug().Str("schema", schemas.StorySchema).Msg("Postgres schema applied")
	return nil
}

// Pool returns the underlying pool
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Close closes the pool
func (d *DB) Close() error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

// jsonParam encodes a value for a $n::jsonb parameter
func jsonParam(value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON unmarshals a jsonb column, leaving dst untouched for NULL
func decodeJSON(raw []byte, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
