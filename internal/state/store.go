package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS calibration_versions (
	version_id     TEXT PRIMARY KEY,
	storage_key    TEXT NOT NULL,
	parent_id      TEXT,
	model_json     TEXT NOT NULL,
	sample_count   INTEGER NOT NULL,
	error_estimate REAL NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES calibration_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_versions_key ON calibration_versions(storage_key, created_at);

CREATE TABLE IF NOT EXISTS active_calibration (
	storage_key   TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES calibration_versions(version_id)
);

CREATE TABLE IF NOT EXISTS calibration_events (
	storage_key  TEXT NOT NULL,
	kind         TEXT NOT NULL,
	version_id   TEXT,
	decision     TEXT NOT NULL,
	reason       TEXT,
	sample_json  TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_key ON calibration_events(storage_key, kind, created_at);
`

// #endregion schema

// #region store-struct
// Store keeps versioned calibration blobs in SQLite, one active version per key.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save
// Save inserts a new version for key and makes it active. The previously active
// version, if any, becomes its parent.
func (s *Store) Save(key, modelJSON string, sampleCount int, errorEstimate float64) (Version, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_calibration WHERE storage_key = ?`, key).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("get active: %w", err)
	}

	v := Version{
		VersionID:     uuid.New().String(),
		StorageKey:    key,
		ParentID:      parent.String,
		ModelJSON:     modelJSON,
		SampleCount:   sampleCount,
		ErrorEstimate: errorEstimate,
		CreatedAt:     time.Now().UTC(),
	}

	var parentPtr interface{}
	if v.ParentID != "" {
		parentPtr = v.ParentID
	}

	_, err = tx.Exec(
		`INSERT INTO calibration_versions (version_id, storage_key, parent_id, model_json, sample_count, error_estimate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, key, parentPtr, modelJSON, sampleCount, errorEstimate, v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Version{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_calibration (storage_key, version_id) VALUES (?, ?)
		 ON CONFLICT(storage_key) DO UPDATE SET version_id = excluded.version_id`,
		key, v.VersionID,
	)
	if err != nil {
		return Version{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// #endregion save

// #region load
// Load returns the active model JSON for key, or ErrNotFound.
func (s *Store) Load(key string) (string, error) {
	v, err := s.Current(key)
	if err != nil {
		return "", err
	}
	return v.ModelJSON, nil
}

// Current returns the active version for key, or ErrNotFound.
func (s *Store) Current(key string) (Version, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_calibration WHERE storage_key = ?`, key).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// GetVersion retrieves a specific version by ID.
func (s *Store) GetVersion(id string) (Version, error) {
	row := s.db.QueryRow(
		`SELECT version_id, storage_key, parent_id, model_json, sample_count, error_estimate, created_at
		 FROM calibration_versions WHERE version_id = ?`, id,
	)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}

// #endregion load

// #region rollback
// Rollback points key at a previous version of the same key.
func (s *Store) Rollback(key, targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM calibration_versions WHERE version_id = ? AND storage_key = ?`, targetVersionID, key,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s for key %s: %w", targetVersionID, key, ErrNotFound)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_calibration (storage_key, version_id) VALUES (?, ?)
		 ON CONFLICT(storage_key) DO UPDATE SET version_id = excluded.version_id`,
		key, targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Clear drops the active pointer for key. History is kept for inspection.
func (s *Store) Clear(key string) error {
	if _, err := s.db.Exec(`DELETE FROM active_calibration WHERE storage_key = ?`, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent versions for key, newest first.
func (s *Store) ListVersions(key string, limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT version_id, storage_key, parent_id, model_json, sample_count, error_estimate, created_at
		 FROM calibration_versions WHERE storage_key = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// #endregion list-versions

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (Version, error) {
	var v Version
	var parentID sql.NullString
	var createdStr string
	if err := row.Scan(&v.VersionID, &v.StorageKey, &parentID, &v.ModelJSON, &v.SampleCount, &v.ErrorEstimate, &createdStr); err != nil {
		return Version{}, err
	}
	if parentID.Valid {
		v.ParentID = parentID.String
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return v, nil
}

// #endregion scan
