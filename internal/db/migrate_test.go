package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsSortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_more.sql":   {Data: []byte("SELECT 2;")},
		"m/001_schema.sql": {Data: []byte("SELECT 1;")},
		"m/README.md":      {Data: []byte("docs")},
		"m/notes.sql":      {Data: []byte("SELECT 0;")},
	}

	got, err := loadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Errorf("versions = %d, %d", got[0].Version, got[1].Version)
	}
	if got[0].SQL != "SELECT 1;" {
		t.Errorf("SQL = %q", got[0].SQL)
	}
}

func TestLoadMigrationsRejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := loadMigrations(fsys, "m"); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestEmbeddedSchemaGuardsInvariants(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}

	schema := migrations[0].SQL
	for _, want := range []string{
		"quantity_on_hand INTEGER NOT NULL CHECK (quantity_on_hand >= 0)",
		"EXCLUDE USING gist",
		"CHECK (total_amount = service_price + extra_charge + medicine_total)",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
