package database

import (
	"fmt"
	"path/filepath"

	"techpost/internal/config"
	"techpost/internal/engage"
)

// DatabaseFile is the name of the database file inside the data directory.
const DatabaseFile = "techpost.db"

// NewDatabaseFromConfig creates a database based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock engage.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFile), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
