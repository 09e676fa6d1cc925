package storage

import (
	"context"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wallet-statement/internal/config"
)

// ClickHouseDB is the ledger entry archive connection
type ClickHouseDB struct {
	conn driver.Conn
	addr string
}

// NewClickHouseDB opens the archive connection. Entry batches are written
// once per statement, so a small pool with LZ4 compression is enough.
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings:        clickhouse.Settings{"max_execution_time": 30},
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:     connectTimeout,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, &ConnectError{Backend: "clickhouse", Addr: addr, Stage: StageDial, Err: err}
	}
	if err := verify("clickhouse", addr, conn.Ping, func() { _ = conn.Close() }); err != nil {
		return nil, err
	}

	return &ClickHouseDB{conn: conn, addr: addr}, nil
}

// Addr is the host:port of the archive
func (db *ClickHouseDB) Addr() string {
	return db.addr
}

func (db *ClickHouseDB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn exposes the driver for batch inserts
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec runs a DDL or write statement
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}
