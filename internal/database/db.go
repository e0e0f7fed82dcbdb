// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Profile defines configuration profiles for the two databases.
type Profile string

const (
	// ProfileLedger - maximum safety for the append-only transaction log
	ProfileLedger Profile = "ledger"
	// ProfileCache - maximum speed for replaceable price data
	ProfileCache Profile = "cache"
)

// DB wraps a sqlite connection configured for long-term service operation.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile Profile
	Name    string // Friendly name for logging (e.g., "transactions", "prices")
}

// New opens a database connection with profile-appropriate PRAGMAs.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileCache
	}

	conn, err := sql.Open("sqlite", connectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	// sqlite performs best with a single writer; a small pool still helps
	// concurrent readers in WAL mode.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

// connectionString builds the sqlite DSN with profile PRAGMAs.
func connectionString(path string, profile Profile) string {
	pragmas := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}
	switch profile {
	case ProfileLedger:
		pragmas = append(pragmas, "_pragma=synchronous(FULL)")
	case ProfileCache:
		pragmas = append(pragmas, "_pragma=synchronous(NORMAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}

// Conn exposes the raw connection for repositories.
func (d *DB) Conn() *sql.DB { return d.conn }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the connection.
func (d *DB) Close() error {
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database %s: %w", d.name, err)
	}
	return nil
}

// NewInMemory opens a private in-memory database for tests.
func NewInMemory(name string) (*DB, error) {
	return New(Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Profile: ProfileCache,
		Name:    name,
	})
}
