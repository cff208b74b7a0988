// Package database provides durable-store bootstrap: connection setup and
// schema creation for the collaboration engine's three tables.
package database

import (
	"database/sql"
	"fmt"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		state BLOB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS session_directory (
		document_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		display_color TEXT NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		PRIMARY KEY (document_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS room_activity (
		document_id TEXT PRIMARY KEY,
		participant_count INTEGER NOT NULL DEFAULT 0,
		last_activity TIMESTAMP NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_directory_last_seen ON session_directory(last_seen)`,
}

// TableCreator handles creation of the engine's database schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all queries needed to build the tables and indexes.
// Every statement is idempotent.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}
