package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UpdateListener is called after an entry's data or options change.
type UpdateListener func(ctx context.Context, e Entry)

// Store defines entry persistence operations.
type Store interface {
	// Get returns ErrEntryNotFound if the entry does not exist.
	Get(ctx context.Context, id string) (*Entry, error)

	List(ctx context.Context) ([]Entry, error)

	// Create assigns a UUID when e.ID is empty.
	Create(ctx context.Context, e *Entry) error

	UpdateVersion(ctx context.Context, id string, version int) error

	// UpdateData replaces data and options and notifies update listeners.
	UpdateData(ctx context.Context, id string, data, options map[string]any) (*Entry, error)

	Delete(ctx context.Context, id string) error

	// AddUpdateListener registers fn for entry id. The returned func removes it.
	AddUpdateListener(id string, fn UpdateListener) (remove func())
}

// SQLiteStore implements Store on the config_entries table.
type SQLiteStore struct {
	db *sql.DB

	listenersMu sync.Mutex
	listeners   map[string]map[uint64]UpdateListener
	nextID      uint64

	now func() time.Time
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:        db,
		listeners: make(map[string]map[uint64]UpdateListener),
		now:       time.Now,
	}
}

const selectEntry = `
	SELECT id, title, version, data, options, created_at, updated_at
	FROM config_entries`

// Get retrieves an entry by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying entry by id: %w", err)
	}
	return e, nil
}

// List returns all entries ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry. Version defaults to 1.
func (s *SQLiteStore) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Version <= 0 {
		e.Version = 1
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Options == nil {
		e.Options = map[string]any{}
	}

	data, options, err := encodeMaps(e.Data, e.Options)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_entries (id, title, version, data, options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Version, data, options,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEntryExists
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// UpdateVersion persists a new schema version.
func (s *SQLiteStore) UpdateVersion(ctx context.Context, id string, version int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE config_entries SET version = ?, updated_at = ? WHERE id = ?`,
		version, s.now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("updating entry version: %w", err)
	}
	return requireRow(result)
}

// UpdateData replaces data and options, then notifies listeners with the
// stored entry. Listeners run synchronously on the caller's goroutine.
func (s *SQLiteStore) UpdateData(ctx context.Context, id string, data, options map[string]any) (*Entry, error) {
	if data == nil {
		data = map[string]any{}
	}
	if options == nil {
		options = map[string]any{}
	}
	dataJSON, optionsJSON, err := encodeMaps(data, options)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE config_entries SET data = ?, options = ?, updated_at = ? WHERE id = ?`,
		dataJSON, optionsJSON, s.now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating entry data: %w", err)
	}
	if err := requireRow(result); err != nil {
		return nil, err
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, fn := range s.listenersFor(id) {
		fn(ctx, e.Clone())
	}
	return e, nil
}

// Delete removes an entry and, by cascade, its entities.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return requireRow(result)
}

// AddUpdateListener registers fn for id.
func (s *SQLiteStore) AddUpdateListener(id string, fn UpdateListener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextID++
	key := s.nextID
	if s.listeners[id] == nil {
		s.listeners[id] = make(map[uint64]UpdateListener)
	}
	s.listeners[id][key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			delete(s.listeners[id], key)
			if len(s.listeners[id]) == 0 {
				delete(s.listeners, id)
			}
		})
	}
}

// ListenerCount returns the number of listeners registered for id.
func (s *SQLiteStore) ListenerCount(id string) int {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return len(s.listeners[id])
}

// listenersFor snapshots the listeners so they can run without the lock;
// a listener that reloads the entry removes and re-adds itself.
func (s *SQLiteStore) listenersFor(id string) []UpdateListener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	fns := make([]UpdateListener, 0, len(s.listeners[id]))
	for _, fn := range s.listeners[id] {
		fns = append(fns, fn)
	}
	return fns
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                  Entry
		data, options      string
		createdAt, updated string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Version, &data, &options, &createdAt, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return nil, fmt.Errorf("decoding data of entry %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &e.Options); err != nil {
		return nil, fmt.Errorf("decoding options of entry %s: %w", e.ID, err)
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Options == nil {
		e.Options = map[string]any{}
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)   //nolint:errcheck // Format is controlled
	return &e, nil
}

func encodeMaps(data, options map[string]any) (string, string, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: encoding data: %w", ErrInvalidEntry, err)
	}
	o, err := json.Marshal(options)
	if err != nil {
		return "", "", fmt.Errorf("%w: encoding options: %w", ErrInvalidEntry, err)
	}
	return string(d), string(o), nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
