package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  int
		name     string
		wantErr  bool
	}{
		{"001_init.sql", 1, "init", false},
		{"012_add_history_index.sql", 12, "add_history_index", false},
		{"noversion.sql", 0, "", true},
		{"xx_name.sql", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			v, n, err := ParseMigrationFilename(tt.filename)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if v != tt.version || n != tt.name {
				t.Errorf("got (%d, %s), want (%d, %s)", v, n, tt.version, tt.name)
			}
		})
	}
}

func TestMigratorLoadOrdersByVersion(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"010_tenth.sql":  "SELECT 10;",
		"README.md":      "not a migration",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.Load()
	if err != nil {
		t.Fatalf("Load() returned %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("loaded %d migrations, want 3", len(migrations))
	}
	wantOrder := []int{1, 2, 10}
	for i, mig := range migrations {
		if mig.Version != wantOrder[i] {
			t.Errorf("migration[%d].Version = %d, want %d", i, mig.Version, wantOrder[i])
		}
	}
	if migrations[0].SQL != "SELECT 1;" {
		t.Errorf("first migration SQL = %q", migrations[0].SQL)
	}
}
