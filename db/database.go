package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database owns the SQLite connection lifecycle: open with WAL mode,
// run migrations, hand the connection to the Repository, close on
// shutdown.
//
// Usage:
//
//	database, err := db.NewDatabase("data/notes.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
//
//	if err := database.Migrate(); err != nil {
//	    log.Fatal(err)
//	}
//	repo := db.NewRepository(database)
type Database struct {
	conn           *sql.DB
	path           string
	migrationsPath string
	mu             sync.RWMutex
}

// DatabaseConfig holds configuration for the Database.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// MigrationsPath overrides DefaultMigrationsPath (file:// URL form)
	MigrationsPath string
	// ConnectionConfig allows customizing the SQLite connection
	ConnectionConfig *ConnectionConfig
}

// NewDatabase opens (creating parent directories as needed) the database
// at path with default configuration.
func NewDatabase(path string) (*Database, error) {
	return NewDatabaseWithConfig(DatabaseConfig{Path: path})
}

// NewDatabaseWithConfig opens the database with custom configuration.
func NewDatabaseWithConfig(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.ConnectionConfig != nil {
		connConfig = *config.ConnectionConfig
	}

	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	migrationsPath := config.MigrationsPath
	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}

	return &Database{
		conn:           conn,
		path:           config.Path,
		migrationsPath: migrationsPath,
	}, nil
}

// Migrate applies pending schema migrations. Safe to call on every
// startup; already-applied migrations are skipped.
//
// golang-migrate takes ownership of the connection it is given, so this
// runs on a separate path-scoped connection rather than d.conn.
func (d *Database) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := MigrateUpFromPath(d.path, d.migrationsPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Conn returns the underlying sql.DB for repository use.
// Close it via Database.Close, not directly.
func (d *Database) Conn() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Ping verifies the connection is alive. Used by the health endpoint.
func (d *Database) Ping() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return fmt.Errorf("database connection is closed")
	}
	return d.conn.Ping()
}

// Stats returns connection pool statistics for the status endpoint.
func (d *Database) Stats() sql.DBStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return sql.DBStats{}
	}
	return d.conn.Stats()
}

// Close releases the connection. The Database must not be used afterwards.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.conn = nil
	return nil
}
