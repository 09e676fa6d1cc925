// Package storage provides database connections, repositories and the shared price cache.
package storage

import (
	"context"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallet-statement/internal/config"
)

// bounds a single statement document write or read
const postgresStatementTimeout = "30s"

// PostgresDB is the statement store connection pool
type PostgresDB struct {
	pool *pgxpool.Pool
	addr string
}

// NewPostgresDB opens a pool against cfg.URL() and verifies it with a ping.
// Statements are written once and read by id, so the pool starts empty and
// idle connections are released quickly.
func NewPostgresDB(cfg *config.PostgresConfig) (*PostgresDB, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, &ConnectError{Backend: "postgres", Addr: addr, Stage: StageConfig, Err: err}
	}
	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "wallet-statement"
	poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = postgresStatementTimeout

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectError{Backend: "postgres", Addr: addr, Stage: StageDial, Err: err}
	}
	if err := verify("postgres", addr, pool.Ping, pool.Close); err != nil {
		return nil, err
	}

	return &PostgresDB{pool: pool, addr: addr}, nil
}

// Addr is the host:port the pool connects to
func (db *PostgresDB) Addr() string {
	return db.addr
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
