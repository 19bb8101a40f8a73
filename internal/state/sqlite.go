package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lumameet/presenced/internal/domain"
	"github.com/lumameet/presenced/internal/shared"
	_ "modernc.org/sqlite"
)

// The session table holds at most one row; the agent tracks a single presence
// session at a time.
const sessionRowID = 1

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS presence_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		venue_json TEXT NOT NULL,
		checked_in_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		device_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves the persisted presence session.
func (s *SQLiteStore) GetSession(ctx context.Context) (*domain.Session, error) {
	query := `SELECT venue_json, checked_in_at FROM presence_session WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, sessionRowID)

	var venueJSON string
	var checkedInAt int64

	err := row.Scan(&venueJSON, &checkedInAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(venueJSON), &session.Venue); err != nil {
		return nil, fmt.Errorf("decode persisted venue: %w", err)
	}
	session.CheckedInAt = time.Unix(checkedInAt, 0)

	return &session, nil
}

// SaveSession persists the presence session, replacing any prior one.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	venueJSON, err := json.Marshal(session.Venue)
	if err != nil {
		return fmt.Errorf("encode venue: %w", err)
	}

	query := `
	INSERT INTO presence_session (id, venue_json, checked_in_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		venue_json = excluded.venue_json,
		checked_in_at = excluded.checked_in_at,
		updated_at = excluded.updated_at`

	return shared.RetrySQLite(ctx, "save session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sessionRowID, string(venueJSON), session.CheckedInAt.Unix(), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	})
}

// ClearSession removes the persisted presence session.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	return shared.RetrySQLite(ctx, "clear session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM presence_session WHERE id = ?`, sessionRowID)
		if err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		return nil
	})
}

// DeviceID retrieves the persisted device identity.
func (s *SQLiteStore) DeviceID(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT device_id FROM device WHERE id = 1`)

	var deviceID string
	err := row.Scan(&deviceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan device row: %w", err)
	}
	return deviceID, nil
}

// SaveDeviceID persists the device identity.
func (s *SQLiteStore) SaveDeviceID(ctx context.Context, deviceID string) error {
	query := `
	INSERT INTO device (id, device_id, created_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET device_id = excluded.device_id`

	return shared.RetrySQLite(ctx, "save device id", func() error {
		_, err := s.db.ExecContext(ctx, query, deviceID, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("save device id: %w", err)
		}
		return nil
	})
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
