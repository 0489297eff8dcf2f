package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PGPoolConfig tunes the pgx pool behind PGStore. Zero values keep pgx defaults.
type PGPoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PGStore persists the pair as two rows of console.session_credentials.
type PGStore struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	accessKey  string
	refreshKey string
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS console;
CREATE TABLE IF NOT EXISTS console.session_credentials (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// NewPGStore connects to pgURL and makes sure the credentials table exists.
func NewPGStore(ctx context.Context, pgURL, prefix string, poolCfg PGPoolConfig, logger *zap.Logger) (*PGStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure credentials schema: %w", err)
	}

	return &PGStore{
		pool:       pool,
		logger:     logger,
		accessKey:  namespaced(prefix, KeyAccess),
		refreshKey: namespaced(prefix, KeyRefresh),
	}, nil
}

func (s *PGStore) Access(ctx context.Context) (string, error) {
	return s.get(ctx, s.accessKey)
}

func (s *PGStore) Refresh(ctx context.Context) (string, error) {
	return s.get(ctx, s.refreshKey)
}

func (s *PGStore) get(ctx context.Context, key string) (string, error) {
	var val string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM console.session_credentials WHERE key = $1`, key).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pg get %s: %w", key, err)
	}
	return val, nil
}

// SetPair upserts the present fields inside one transaction.
func (s *PGStore) SetPair(ctx context.Context, p Pair) error {
	if p.Empty() {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for key, val := range map[string]string{s.accessKey: p.AccessToken, s.refreshKey: p.RefreshToken} {
			if val == "" {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO console.session_credentials (key, value, updated_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
			`, key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("credentials.pg.set_failed", zap.Error(err))
		return fmt.Errorf("pg set pair: %w", err)
	}
	return nil
}

func (s *PGStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM console.session_credentials WHERE key IN ($1, $2)`, s.accessKey, s.refreshKey)
	if err != nil {
		s.logger.Error("credentials.pg.clear_failed", zap.Error(err))
		return fmt.Errorf("pg clear: %w", err)
	}
	return nil
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
