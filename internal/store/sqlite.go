package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"insp/internal/models"
)

// SQLiteStore implements EntityStore and SyncStore on a single SQLite
// database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the sync database at dbPath and runs any
// pending migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	s, err := NewWithDB(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.path = dbPath
	return s, nil
}

// NewWithDB wraps an existing connection (tests use this with an
// in-memory database) and initializes the schema.
func NewWithDB(conn *sql.DB) (*SQLiteStore, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if _, err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Ping checks the database connection is alive.
func (s *SQLiteStore) Ping() error {
	return s.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

// RunMigrations runs any pending database migrations.
func (s *SQLiteStore) RunMigrations() (int, error) {
	currentVersion := s.getSchemaVersion()
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version > currentVersion {
			if _, err := s.conn.Exec(m.SQL); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := s.setSchemaVersion(m.Version); err != nil {
				return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
	}

	if currentVersion == 0 {
		if err := s.setSchemaVersion(SchemaVersion); err != nil {
			return migrationsRun, err
		}
	}
	return migrationsRun, nil
}

func (s *SQLiteStore) getSchemaVersion() int {
	var version string
	if err := s.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (s *SQLiteStore) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// Create inserts an entity row. Idempotent: an existing row with the
// same id is replaced wholesale.
func (s *SQLiteStore) Create(ctx context.Context, et models.EntityType, e Entity) error {
	table, err := tableFor(et)
	if err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("create %s: empty entity id", et)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("create %s/%s: empty payload", et, e.ID)
	}
	if !json.Valid(e.Data) {
		return fmt.Errorf("create %s/%s: payload is not valid JSON", et, e.ID)
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, data, owner_id, created_by, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)`, table)
	if _, err := s.conn.ExecContext(ctx, query,
		e.ID, string(e.Data), e.OwnerID, e.CreatedBy,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("create %s/%s: %w", et, e.ID, err)
	}
	return nil
}

// Update upserts an entity's data. A missing row is created so replayed
// syncs stay idempotent; created_at is preserved when the row exists.
func (s *SQLiteStore) Update(ctx context.Context, et models.EntityType, id string, data json.RawMessage, modifiedAt time.Time) error {
	table, err := tableFor(et)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("update %s: empty entity id", et)
	}
	if len(data) == 0 || !json.Valid(data) {
		return fmt.Errorf("update %s/%s: invalid payload", et, id)
	}

	ts := modifiedAt.UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(`INSERT INTO %s (id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`, table)
	if _, err := s.conn.ExecContext(ctx, query, id, string(data), ts, ts); err != nil {
		return fmt.Errorf("update %s/%s: %w", et, id, err)
	}
	return nil
}

// SoftDelete sets deleted_at on a row. No-op if the row does not exist.
func (s *SQLiteStore) SoftDelete(ctx context.Context, et models.EntityType, id, actingUserID string, when time.Time) error {
	table, err := tableFor(et)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = ?, updated_at = ? WHERE id = ?`, table)
	ts := when.UTC().Format(time.RFC3339Nano)
	if _, err := s.conn.ExecContext(ctx, query, ts, ts, id); err != nil {
		return fmt.Errorf("soft delete %s/%s: %w", et, id, err)
	}
	return nil
}

// FindModifiedSince returns rows modified strictly after since, limited
// to rows visible to userID (owned by them or unowned/shared).
func (s *SQLiteStore) FindModifiedSince(ctx context.Context, et models.EntityType, since time.Time, userID string) ([]Entity, error) {
	table, err := tableFor(et)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, data, owner_id, created_by, created_at, updated_at, deleted_at
		FROM %s WHERE updated_at > ? AND (owner_id = '' OR owner_id = ?)
		ORDER BY updated_at ASC`, table)
	rows, err := s.conn.QueryContext(ctx, query, since.UTC().Format(time.RFC3339Nano), userID)
	if err != nil {
		return nil, fmt.Errorf("find modified %s: %w", et, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var (
			e                    Entity
			data                 string
			createdTS, updatedTS string
			deletedTS            sql.NullString
		)
		if err := rows.Scan(&e.ID, &data, &e.OwnerID, &e.CreatedBy, &createdTS, &updatedTS, &deletedTS); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", et, err)
		}
		e.Data = json.RawMessage(data)

		if e.CreatedAt, err = parseTimestamp(createdTS); err != nil {
			return nil, fmt.Errorf("parse created_at %s/%s: %w", et, e.ID, err)
		}
		if e.UpdatedAt, err = parseTimestamp(updatedTS); err != nil {
			return nil, fmt.Errorf("parse updated_at %s/%s: %w", et, e.ID, err)
		}
		if deletedTS.Valid && deletedTS.String != "" {
			t, err := parseTimestamp(deletedTS.String)
			if err != nil {
				return nil, fmt.Errorf("parse deleted_at %s/%s: %w", et, e.ID, err)
			}
			e.DeletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntity fetches a single row by id, nil if absent. Used by tests
// and the conflicts CLI to inspect final entity state.
func (s *SQLiteStore) GetEntity(ctx context.Context, et models.EntityType, id string) (*Entity, error) {
	table, err := tableFor(et)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, data, owner_id, created_by, created_at, updated_at, deleted_at
		FROM %s WHERE id = ?`, table)
	var (
		e                    Entity
		data                 string
		createdTS, updatedTS string
		deletedTS            sql.NullString
	)
	err = s.conn.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &data, &e.OwnerID, &e.CreatedBy, &createdTS, &updatedTS, &deletedTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", et, id, err)
	}

	e.Data = json.RawMessage(data)
	if e.CreatedAt, err = parseTimestamp(createdTS); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTimestamp(updatedTS); err != nil {
		return nil, err
	}
	if deletedTS.Valid && deletedTS.String != "" {
		t, err := parseTimestamp(deletedTS.String)
		if err != nil {
			return nil, err
		}
		e.DeletedAt = &t
	}
	return &e, nil
}
