// Package sqlite provides the SQLite-backed implementations of the storage
// adapter and relationship-store contracts.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store owns the shared database handle. All adapters and the relationship
// store are constructed from one Store so they share a single connection.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database, configures WAL mode, and creates the schema.
// Use ":memory:" as the DSN for an ephemeral store in tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load; WAL mode lets readers proceed without blocking it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of returning an immediate SQLITE_BUSY error when the
	// connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for components that share the database
// file, such as the vector point store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Emails returns the email adapter bound to this store.
func (s *Store) Emails() *EmailAdapter { return &EmailAdapter{db: s.db} }

// Contacts returns the contact adapter bound to this store.
func (s *Store) Contacts() *ContactAdapter { return &ContactAdapter{db: s.db} }

// FollowUps returns the follow-up adapter bound to this store.
func (s *Store) FollowUps() *FollowUpAdapter { return &FollowUpAdapter{db: s.db} }

// Meetings returns the meeting adapter bound to this store.
func (s *Store) Meetings() *MeetingAdapter { return &MeetingAdapter{db: s.db} }

// Generic returns the generic adapter bound to this store.
func (s *Store) Generic() *GenericAdapter { return &GenericAdapter{db: s.db} }

// Relationships returns the relationship store bound to this store.
func (s *Store) Relationships() *RelationshipStore { return &RelationshipStore{db: s.db} }
