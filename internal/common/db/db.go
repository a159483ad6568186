package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Database is the handle repositories depend on. Queries are written with
// '?' placeholders; drivers that need another style rebind them.
type Database interface {
	Querier
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// Transaction is a Querier bound to one database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows iterates over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// TxOptions mirrors sql.TxOptions without leaking database/sql to callers.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ConvertTxOptions converts TxOptions to sql.TxOptions.
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly}
}

// Config selects and configures the SQL backend.
type Config struct {
	Driver string     `yaml:"driver"` // mysql | postgres
	DSN    string     `yaml:"dsn"`
	Pool   PoolConfig `yaml:"pool"`
}

// Open connects to the backend named by cfg.Driver.
func Open(cfg Config) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMySQL:
		return NewMySQL(MySQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	case DriverPostgres, "postgresql", "pgx":
		return NewPostgreSQL(PostgreSQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
