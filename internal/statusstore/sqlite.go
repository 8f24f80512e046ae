package statusstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feichai0017/pdf-rag/internal/models"
)

const createStatusTable = `
CREATE TABLE IF NOT EXISTS document_status (
	file_id      TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	timestamp    TEXT NOT NULL,
	vector_count INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore keeps records in a single table of an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps writers serialised
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createStatusTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create status table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, filename, status, message, timestamp, vector_count FROM document_status`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query status: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	records := map[string]models.DocumentRecord{}
	for rows.Next() {
		var (
			rec models.DocumentRecord
			ts  string
		)
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Status, &rec.Message, &ts, &rec.VectorCount); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrCorruptStatusFile, err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: bad timestamp: %v", models.ErrCorruptStatusFile, rec.ID, err)
		}
		if !rec.Status.Valid() {
			return nil, fmt.Errorf("%w: record %s has unknown status %q", models.ErrCorruptStatusFile, rec.ID, rec.Status)
		}
		records[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read status rows: %v", models.ErrStorage, err)
	}
	return records, nil
}

// Save replaces the table contents in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records map[string]models.DocumentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_status`); err != nil {
		return fmt.Errorf("%w: failed to clear status: %v", models.ErrStorage, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_status (file_id, filename, status, message, timestamp, vector_count) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare insert: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for id, rec := range records {
		if _, err := stmt.ExecContext(ctx, id, rec.Filename, string(rec.Status), rec.Message,
			rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.VectorCount); err != nil {
			return fmt.Errorf("%w: failed to insert %s: %v", models.ErrStorage, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit status: %v", models.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
