package db

import (
	_ "github.com/go-sql-driver/mysql"
)

// DriverMySQL selects the MySQL backend.
const DriverMySQL = "mysql"

// MySQLConfig configures a MySQL connection pool.
type MySQLConfig struct {
	// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=UTC"
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// NewMySQL opens and pings a MySQL pool.
func NewMySQL(cfg MySQLConfig) (Database, error) {
	return openSQL("mysql", cfg.DSN, cfg.Pool, DriverMySQL, nil)
}
