package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines entity registry persistence.
type Repository interface {
	// ListByEntry returns an entry's entities ordered by entity id.
	ListByEntry(ctx context.Context, entryID string) ([]Entity, error)

	// Get returns ErrEntityNotFound if the entity does not exist.
	Get(ctx context.Context, entityID string) (*Entity, error)

	// Upsert inserts the entity or updates it in place.
	Upsert(ctx context.Context, e *Entity) error

	UpdateUniqueID(ctx context.Context, entityID, uniqueID string) error

	Remove(ctx context.Context, entityID string) error

	// RemoveByEntry deletes every entity of an entry and returns how many.
	RemoveByEntry(ctx context.Context, entryID string) (int, error)
}

// SQLiteRepository implements Repository on the entities table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListByEntry returns the entities of one entry.
func (r *SQLiteRepository) ListByEntry(ctx context.Context, entryID string) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, unique_id, config_entry_id, platform, name, created_at
		FROM entities
		WHERE config_entry_id = ?
		ORDER BY entity_id`, entryID)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return entities, nil
}

// Get retrieves one entity.
func (r *SQLiteRepository) Get(ctx context.Context, entityID string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_id, unique_id, config_entry_id, platform, name, created_at
		FROM entities
		WHERE entity_id = ?`, entityID)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("querying entity: %w", err)
	}
	return e, nil
}

// Upsert inserts or updates an entity keyed by entity id.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *Entity) error {
	if e.EntityID == "" || e.UniqueID == "" || e.ConfigEntryID == "" {
		return fmt.Errorf("%w: entity_id, unique_id and config_entry_id are required", ErrInvalidEntity)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (entity_id, unique_id, config_entry_id, platform, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			unique_id = excluded.unique_id,
			config_entry_id = excluded.config_entry_id,
			platform = excluded.platform,
			name = excluded.name`,
		e.EntityID, e.UniqueID, e.ConfigEntryID, string(e.Platform), e.Name,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting entity: %w", err)
	}
	return nil
}

// UpdateUniqueID rewrites an entity's unique id.
func (r *SQLiteRepository) UpdateUniqueID(ctx context.Context, entityID, uniqueID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE entities SET unique_id = ? WHERE entity_id = ?`, uniqueID, entityID)
	if err != nil {
		return fmt.Errorf("updating unique id: %w", err)
	}
	return requireRow(result)
}

// Remove deletes one entity.
func (r *SQLiteRepository) Remove(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("removing entity: %w", err)
	}
	return requireRow(result)
}

// RemoveByEntry deletes all entities of an entry.
func (r *SQLiteRepository) RemoveByEntry(ctx context.Context, entryID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE config_entry_id = ?`, entryID)
	if err != nil {
		return 0, fmt.Errorf("removing entities of entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*Entity, error) {
	var (
		e         Entity
		platform  string
		createdAt string
	)
	if err := row.Scan(&e.EntityID, &e.UniqueID, &e.ConfigEntryID, &platform, &e.Name, &createdAt); err != nil {
		return nil, err
	}
	e.Platform = Platform(platform)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	return &e, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntityNotFound
	}
	return nil
}
