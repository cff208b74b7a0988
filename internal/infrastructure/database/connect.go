package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/slatedeck/slatedeck-go/pkg/config"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Connect opens the durable store: Turso when configured, a local SQLite
// file otherwise. Pool settings come from the central config package.
func Connect() (*sql.DB, error) {
	var conn *sql.DB
	var err error

	if config.TursoEnabled && config.TursoDatabase != "" && config.TursoToken != "" {
		connStr := config.TursoDatabase + "?authToken=" + config.TursoToken
		conn, err = sql.Open("libsql", connStr)
		if err != nil {
			return nil, fmt.Errorf("turso connection failed: %w", err)
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("turso ping failed: %w", err)
		}
	} else {
		dbDir := filepath.Dir(config.SQLitePath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		conn, err = sql.Open("sqlite3", config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite connection failed: %w", err)
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite ping failed: %w", err)
		}
	}

	conn.SetMaxOpenConns(config.DBMaxOpenConns)
	conn.SetMaxIdleConns(config.DBMaxIdleConns)
	conn.SetConnMaxLifetime(time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute)
	conn.SetConnMaxIdleTime(time.Duration(config.DBConnMaxIdleMinutes) * time.Minute)

	return conn, nil
}
