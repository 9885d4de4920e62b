package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/lambda-heatpumps/internal/entity"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

type mockMaintainer struct {
	renameErr, dedupeErr error
	renamed, removed     bool
	calls                []string
	prefix               string
}

func (m *mockMaintainer) RenameLegacy(_ context.Context, _ string, prefix string) (bool, error) {
	m.calls = append(m.calls, "rename")
	m.prefix = prefix
	return m.renamed, m.renameErr
}

func (m *mockMaintainer) DedupeEntities(_ context.Context, _ string) (bool, error) {
	m.calls = append(m.calls, "dedupe")
	return m.removed, m.dedupeErr
}

type mockVersions struct {
	err      error
	versions map[string]int
}

func (m *mockVersions) UpdateVersion(_ context.Context, id string, v int) error {
	if m.err != nil {
		return m.err
	}
	if m.versions == nil {
		m.versions = map[string]int{}
	}
	m.versions[id] = v
	return nil
}

func TestMigrate(t *testing.T) {
	boom := errors.New("registry unavailable")

	tests := []struct {
		name        string
		version     int
		maintainer  *mockMaintainer
		versionsErr error
		wantCalls   int
		wantStored  bool
	}{
		{"both passes succeed", 1, &mockMaintainer{renamed: true, removed: true}, nil, 2, true},
		{"both passes fail", 1, &mockMaintainer{renameErr: boom, dedupeErr: boom}, nil, 2, true},
		{"rename fails only", 1, &mockMaintainer{renameErr: boom}, nil, 2, true},
		{"persist fails", 1, &mockMaintainer{}, boom, 2, false},
		{"already current", 2, &mockMaintainer{}, nil, 0, false},
		{"newer than target", 3, &mockMaintainer{}, nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versions := &mockVersions{err: tt.versionsErr}
			m := NewManager(tt.maintainer, versions, nil)
			e := &entry.Entry{ID: "e1", Version: tt.version, Data: map[string]any{"name": "EU 13L"}}

			if !m.Migrate(context.Background(), e) {
				t.Fatal("Migrate() = false, want true")
			}

			wantVersion := tt.version
			if wantVersion < TargetVersion {
				wantVersion = TargetVersion
			}
			if e.Version != wantVersion {
				t.Errorf("Version = %d, want %d", e.Version, wantVersion)
			}
			if len(tt.maintainer.calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d", tt.maintainer.calls, tt.wantCalls)
			}
			if tt.wantCalls == 2 && (tt.maintainer.calls[0] != "rename" || tt.maintainer.calls[1] != "dedupe") {
				t.Errorf("call order = %v, want [rename dedupe]", tt.maintainer.calls)
			}
			if _, stored := versions.versions["e1"]; stored != tt.wantStored {
				t.Errorf("version stored = %v, want %v", stored, tt.wantStored)
			}
		})
	}
}

func TestMigrate_UsesNamePrefix(t *testing.T) {
	mt := &mockMaintainer{}
	e := &entry.Entry{ID: "e1", Version: 1, Data: map[string]any{"name": "EU 13L"}}

	NewManager(mt, nil, nil).Migrate(context.Background(), e)

	if mt.prefix != "eu13l" {
		t.Errorf("prefix = %q, want eu13l", mt.prefix)
	}
	if e.Version != TargetVersion {
		t.Errorf("Version = %d, want %d", e.Version, TargetVersion)
	}
}

func TestMigrate_NilMaintainer(t *testing.T) {
	e := &entry.Entry{ID: "e1", Version: 1}
	if !NewManager(nil, nil, nil).Migrate(context.Background(), e) {
		t.Fatal("Migrate() = false")
	}
	if e.Version != TargetVersion {
		t.Errorf("Version = %d, want %d", e.Version, TargetVersion)
	}
}

// The real maintainer satisfies the interface.
var _ Maintainer = (*entity.Maintainer)(nil)
