package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/imdbload/internal/config"
	"github.com/JonMunkholm/imdbload/internal/core"
)

// Connect opens a pool sized for parallelism concurrent copies and waits for
// the server to answer. An unreachable store is a configuration error.
func Connect(ctx context.Context, cfg config.DatabaseConfig, parallelism int) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, core.ConfigError("parse database URL: %v", err)
	}

	maxConns := cfg.MaxConns
	if maxConns == 0 {
		maxConns = parallelism + 1
	}
	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(min(cfg.MinConns, maxConns))
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, core.ConfigError("connect to database: %v", err)
	}

	attempt := 0
	ping := func() error {
		attempt++
		err := pool.Ping(ctx)
		if err != nil {
			slog.Warn("database not reachable", "attempt", attempt, "error", err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ConnectRetryInterval), uint64(cfg.ConnectRetries)),
		ctx,
	)
	if err := backoff.Retry(ping, policy); err != nil {
		pool.Close()
		return nil, core.ConfigError("database unreachable after %d attempt(s): %v", attempt, err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "max_conns", maxConns)
	} else {
		slog.Info("connected to database", "max_conns", maxConns)
	}

	return pool, nil
}

// PostgresStore implements Store with the COPY protocol.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Delete removes every row of table. DELETE is used instead of TRUNCATE so
// tables referenced by already-loaded tables outside the resume window can
// be cleared without cascading.
func (s *PostgresStore) Delete(ctx context.Context, table core.Table) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+quoteIdentifier(string(table)))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// CopyFrom copies CSV rows on a dedicated connection inside a transaction.
func (s *PostgresStore) CopyFrom(ctx context.Context, table core.Table, columns []string, r io.Reader) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, r, copyStatement(table, columns))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the store is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func copyStatement(table core.Table, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT csv)",
		quoteIdentifier(string(table)), strings.Join(quoted, ", "))
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
