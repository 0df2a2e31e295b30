package state

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mbarrios/gastosync/internal/events"
)

// SQLiteStore implements SQLite-based checkpoint storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite checkpoint store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "checkpoint_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS checkpoints (
        owner_id TEXT NOT NULL,
        kind     TEXT NOT NULL,
        millis   INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (owner_id, kind)
    );

    CREATE TABLE IF NOT EXISTS last_sync (
        owner_id TEXT PRIMARY KEY,
        millis   INTEGER NOT NULL DEFAULT 0
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Checkpoint returns the stored checkpoint, or 0 when none exists.
func (s *SQLiteStore) Checkpoint(ownerID, kind string) (int64, error) {
	var millis int64
	err := s.db.QueryRow(`
        SELECT millis FROM checkpoints WHERE owner_id = ? AND kind = ?
    `, ownerID, kind).Scan(&millis)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query checkpoint: %w", err)
	}
	return millis, nil
}

// Advance raises the checkpoint monotonically. A value at or below the
// stored one is a no-op, which keeps re-pulls idempotent and protects
// the cursor from going backwards.
func (s *SQLiteStore) Advance(ownerID, kind string, millis int64) error {
	_, err := s.db.Exec(`
        INSERT INTO checkpoints (owner_id, kind, millis)
        VALUES (?, ?, ?)
        ON CONFLICT(owner_id, kind) DO UPDATE SET
            millis = MAX(millis, excluded.millis)
    `, ownerID, kind, millis)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"owner_id": ownerID,
		"kind":     kind,
		"millis":   millis,
	}).Debug("Checkpoint advanced")

	return nil
}

// Reset drops all checkpoints for an owner.
func (s *SQLiteStore) Reset(ownerID string) error {
	s.logger.WithField("owner_id", ownerID).Info("Resetting checkpoints")

	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("reset checkpoints: %w", err)
	}
	return nil
}

// LastSyncMillis returns the wall clock of the last attempted cycle.
func (s *SQLiteStore) LastSyncMillis(ownerID string) (int64, error) {
	var millis int64
	err := s.db.QueryRow(`SELECT millis FROM last_sync WHERE owner_id = ?`, ownerID).Scan(&millis)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query last sync: %w", err)
	}
	return millis, nil
}

// SetLastSyncMillis records the wall clock of an attempted cycle.
func (s *SQLiteStore) SetLastSyncMillis(ownerID string, millis int64) error {
	_, err := s.db.Exec(`
        INSERT INTO last_sync (owner_id, millis)
        VALUES (?, ?)
        ON CONFLICT(owner_id) DO UPDATE SET millis = excluded.millis
    `, ownerID, millis)
	if err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
