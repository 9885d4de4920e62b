// Package audit records the history of lifecycle operations on
// configuration entries in the audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operations recorded by the integration.
const (
	OpSetup   = "setup"
	OpUnload  = "unload"
	OpReload  = "reload"
	OpMigrate = "migrate"
)

// Step is a failed step of an operation.
type Step struct {
	Step  string `json:"step"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Record is one lifecycle operation on an entry.
type Record struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entry_id"`
	Operation string    `json:"operation"`
	OK        bool      `json:"ok"`
	Source    string    `json:"source,omitempty"`
	Error     string    `json:"error,omitempty"`
	Steps     []Step    `json:"steps,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type details struct {
	Error string `json:"error,omitempty"`
	Steps []Step `json:"steps,omitempty"`
}

// Default and maximum page sizes of List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// SQLiteRepository stores records in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts rec. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "aud-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	var detailsJSON *string
	if rec.Error != "" || len(rec.Steps) > 0 {
		b, err := json.Marshal(details{Error: rec.Error, Steps: rec.Steps})
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, entry_id, operation, ok, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntryID, rec.Operation, rec.OK, rec.Source, detailsJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns the most recent records of an entry, newest first. limit is
// clamped to [1, MaxLimit]; zero or less uses DefaultLimit.
func (r *SQLiteRepository) List(ctx context.Context, entryID string, limit int) ([]Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, operation, ok, source, details, created_at
		FROM audit_logs
		WHERE entry_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		entryID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var detailsJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.EntryID, &rec.Operation, &rec.OK,
			&rec.Source, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			var d details
			if json.Unmarshal([]byte(detailsJSON.String), &d) == nil {
				rec.Error = d.Error
				rec.Steps = d.Steps
			}
		}

		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return records, nil
}
