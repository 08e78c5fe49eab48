package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/fintrax/pettyflow/internal/storage"
)

// databasePath resolves the sqlite path from config, falling back to the
// XDG data directory.
func databasePath() (string, error) {
	if path := viper.GetString("database.path"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "pettyflow", "pettyflow.db"), nil
}

// openStorage opens the configured database without migrating it.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}
