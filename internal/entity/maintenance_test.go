package entity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// ─── Mock Repository ────────────────────────────────────────────

type mockRepository struct {
	mu        sync.Mutex
	entities  map[string]Entity
	listErr   error
	failOn    map[string]bool
	removed   []string
	updatedTo map[string]string
}

func newMockRepository(entities ...Entity) *mockRepository {
	m := &mockRepository{
		entities:  make(map[string]Entity),
		failOn:    make(map[string]bool),
		updatedTo: make(map[string]string),
	}
	for _, e := range entities {
		m.entities[e.EntityID] = e
	}
	return m
}

func (m *mockRepository) ListByEntry(_ context.Context, entryID string) ([]Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Entity
	for _, e := range m.entities {
		if e.ConfigEntryID == entryID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return &e, nil
}

func (m *mockRepository) Upsert(_ context.Context, e *Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.EntityID] = *e
	return nil
}

func (m *mockRepository) UpdateUniqueID(_ context.Context, id, uniqueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[id] {
		return errors.New("update failed")
	}
	e := m.entities[id]
	e.UniqueID = uniqueID
	m.entities[id] = e
	m.updatedTo[id] = uniqueID
	return nil
}

func (m *mockRepository) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[id] {
		return errors.New("remove failed")
	}
	delete(m.entities, id)
	m.removed = append(m.removed, id)
	return nil
}

func (m *mockRepository) RemoveByEntry(_ context.Context, entryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entities {
		if e.ConfigEntryID == entryID {
			delete(m.entities, id)
			n++
		}
	}
	return n, nil
}

// ─── Tests ──────────────────────────────────────────────────────

func TestLegacyUniqueID(t *testing.T) {
	tests := []struct {
		uniqueID string
		want     string
		wantOK   bool
	}{
		{"eu08l_hp1_flow_temp", "eu08l_hp1_flow_temp", false},
		{"lambda_hp1_flow_temp", "eu08l_hp1_flow_temp", true},
		{"ambient", "eu08l_ambient", true},
		{"eu08lx_temp", "eu08l_temp", true},
		{"_leading", "eu08l_leading", true},
	}

	for _, tt := range tests {
		t.Run(tt.uniqueID, func(t *testing.T) {
			got, ok := LegacyUniqueID("eu08l", tt.uniqueID)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("LegacyUniqueID(%q) = (%q, %v), want (%q, %v)", tt.uniqueID, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRenameLegacy(t *testing.T) {
	repo := newMockRepository(
		Entity{EntityID: "sensor.a", UniqueID: "old_ambient", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.b", UniqueID: "other_ambient", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.c", UniqueID: "eu08l_flow", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.d", UniqueID: "return", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.z", UniqueID: "foreign_x", ConfigEntryID: "e2"},
	)
	m := NewMaintainer(repo, nil)

	changed, err := m.RenameLegacy(context.Background(), "e1", "eu08l")
	if err != nil {
		t.Fatalf("RenameLegacy() error = %v", err)
	}
	if !changed {
		t.Error("RenameLegacy() = false, want true")
	}

	if got := repo.updatedTo["sensor.a"]; got != "eu08l_ambient" {
		t.Errorf("sensor.a -> %q, want eu08l_ambient", got)
	}
	if got := repo.updatedTo["sensor.d"]; got != "eu08l_return" {
		t.Errorf("sensor.d -> %q, want eu08l_return", got)
	}
	if _, touched := repo.updatedTo["sensor.c"]; touched {
		t.Error("already prefixed entity was rewritten")
	}
	if len(repo.removed) != 1 || repo.removed[0] != "sensor.b" {
		t.Errorf("removed = %v, want [sensor.b]", repo.removed)
	}
	if _, touched := repo.updatedTo["sensor.z"]; touched {
		t.Error("entity of another entry was rewritten")
	}
}

func TestRenameLegacy_NothingToDo(t *testing.T) {
	repo := newMockRepository(
		Entity{EntityID: "sensor.a", UniqueID: "eu08l_a", ConfigEntryID: "e1"},
	)

	changed, err := NewMaintainer(repo, nil).RenameLegacy(context.Background(), "e1", "eu08l")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("RenameLegacy() = true for already migrated entities")
	}
}

func TestRenameLegacy_FailuresAreSkipped(t *testing.T) {
	repo := newMockRepository(
		Entity{EntityID: "sensor.a", UniqueID: "x_one", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.b", UniqueID: "x_two", ConfigEntryID: "e1"},
	)
	repo.failOn["sensor.a"] = true

	changed, err := NewMaintainer(repo, nil).RenameLegacy(context.Background(), "e1", "eu08l")
	if err != nil {
		t.Fatalf("RenameLegacy() error = %v", err)
	}
	if !changed {
		t.Error("RenameLegacy() = false, want true (sensor.b renamed)")
	}
	if repo.updatedTo["sensor.b"] != "eu08l_two" {
		t.Errorf("sensor.b -> %q", repo.updatedTo["sensor.b"])
	}
}

func TestRenameLegacy_ListError(t *testing.T) {
	repo := newMockRepository()
	repo.listErr = errors.New("db gone")

	if _, err := NewMaintainer(repo, nil).RenameLegacy(context.Background(), "e1", "eu08l"); err == nil {
		t.Error("RenameLegacy() expected error when listing fails")
	}
}

func TestDedupeEntities(t *testing.T) {
	repo := newMockRepository(
		Entity{EntityID: "sensor.b", UniqueID: "eu08l_a", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.a", UniqueID: "eu08l_a", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.c", UniqueID: "eu08l_a", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.d", UniqueID: "eu08l_d", ConfigEntryID: "e1"},
	)

	changed, err := NewMaintainer(repo, nil).DedupeEntities(context.Background(), "e1")
	if err != nil {
		t.Fatalf("DedupeEntities() error = %v", err)
	}
	if !changed {
		t.Error("DedupeEntities() = false, want true")
	}

	sort.Strings(repo.removed)
	if len(repo.removed) != 2 || repo.removed[0] != "sensor.b" || repo.removed[1] != "sensor.c" {
		t.Errorf("removed = %v, want [sensor.b sensor.c]", repo.removed)
	}
	if _, err := repo.Get(context.Background(), "sensor.a"); err != nil {
		t.Error("first entity by id was not kept")
	}
}

func TestDedupeEntities_NoDuplicates(t *testing.T) {
	repo := newMockRepository(
		Entity{EntityID: "sensor.a", UniqueID: "a", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.b", UniqueID: "b", ConfigEntryID: "e1"},
	)

	changed, err := NewMaintainer(repo, nil).DedupeEntities(context.Background(), "e1")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("DedupeEntities() = true without duplicates")
	}
}

func TestMaintainer_SQLite(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	seed(t, repo,
		Entity{EntityID: "sensor.a", UniqueID: "lambda_flow", ConfigEntryID: "e1"},
		Entity{EntityID: "sensor.b", UniqueID: "eu08l_flow", ConfigEntryID: "e1"},
	)
	m := NewMaintainer(repo, nil)

	if _, err := m.RenameLegacy(ctx, "e1", "eu08l"); err != nil {
		t.Fatal(err)
	}
	changed, err := m.DedupeEntities(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("DedupeEntities() = false, want true after rename produced a duplicate")
	}

	left, err := repo.ListByEntry(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].EntityID != "sensor.a" {
		t.Errorf("remaining = %+v, want only sensor.a", left)
	}
}
