// File: internal/store/db.go
// War of Dots Server - User Store Connection Manager
//
// Adapted from the teacher's internal/database/database.go: same driver
// selection and schema-init-if-missing shape, schema replaced with the user
// table of spec.md §3 / original_source/database_manager.go's init_db().
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"wodserver/internal/config"
)

// Store wraps the SQL connection and the worker pool every store call runs
// on so the event loop never blocks on I/O.
type Store struct {
	db      *sql.DB
	workers *WorkerPool
	mailer  Mailer
}

// Open opens and initializes the user-store database connection.
func Open(cfg *config.Config, mailer Mailer) (*Store, error) {
	log.Println("Initializing user store connection...")

	var db *sql.DB
	var err error

	switch cfg.DBType {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxConnections)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)

	log.Printf("User store connection established (%s)", cfg.DBType)

	needsInit, err := needsInitialization(db)
	if err != nil {
		return nil, fmt.Errorf("failed to check initialization status: %w", err)
	}
	if needsInit {
		log.Println("User store appears to be new, initializing schema...")
		if err := initializeSchema(db); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		log.Println("User store schema initialized successfully")
	} else {
		log.Println("User store schema already exists")
	}

	return &Store{
		db:      db,
		workers: NewWorkerPool(cfg.StoreWorkers),
		mailer:  mailer,
	}, nil
}

func openSQLite(cfg *config.Config) (*sql.DB, error) {
	dbDir := filepath.Dir(cfg.DBName)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Printf("Warning: failed to set WAL mode: %v", err)
	}

	return db, nil
}

func openPostgres(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	return db, nil
}

func needsInitialization(db *sql.DB) (bool, error) {
	var tableName string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='users'`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		// Postgres doesn't have sqlite_master; fall back to information_schema.
		err2 := db.QueryRow(`SELECT table_name FROM information_schema.tables WHERE table_name = 'users'`).Scan(&tableName)
		if err2 == sql.ErrNoRows {
			return true, nil
		}
		if err2 != nil {
			return false, err2
		}
		return false, nil
	}
	return false, nil
}

func initializeSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
    username          TEXT PRIMARY KEY,
    password_hash     TEXT NOT NULL,
    steam_id          TEXT NULL UNIQUE,
    email             TEXT NULL UNIQUE,
    score             INTEGER DEFAULT 1000,
    number_of_wins    INTEGER DEFAULT 0,
    number_of_games   INTEGER DEFAULT 0,
    last_active       INTEGER,
    title             TEXT DEFAULT NULL,
    money             INTEGER DEFAULT 0,
    items             TEXT DEFAULT '[]',
    stats             TEXT DEFAULT '{"units_destroyed":0,"shortest_game":3600,"minimal_casualties":100,"dev_defeated":false,"campaign_completed":false,"campaign_progress":[]}'
);
`
	_, err := db.Exec(schema)
	return err
}

// Close releases the underlying connection and worker pool.
func (s *Store) Close() error {
	s.workers.Close()
	return s.db.Close()
}

// SendVerificationEmail dispatches a best-effort mail send to the worker
// pool, per spec.md §4.4's register1/login1 "send the code by email" step.
func (s *Store) SendVerificationEmail(ctx context.Context, to, code string) error {
	return s.workers.Do(ctx, func() error {
		return s.mailer.Send(to, fmt.Sprintf("Your War of Dots verification code: %s", code))
	})
}
