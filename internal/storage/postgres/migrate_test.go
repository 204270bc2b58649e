package postgres

import (
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
)

func TestMigrationFilesOrdered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"migrations/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/0001_a.down.sql": {Data: []byte("SELECT 0")},
	}
	got, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migrationFiles failed: %v", err)
	}
	want := []string{"0001_a.up.sql", "0002_b.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("files mismatch: got %v want %v", got, want)
	}
}

func TestEmbeddedSchemaHasCoreTables(t *testing.T) {
	files, err := migrationFiles(migrationsFS)
	if err != nil {
		t.Fatalf("migrationFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	data, err := migrationsFS.ReadFile("migrations/" + files[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"tokens", "pools", "token_pools", "prices", "traders", "transactions", "operations", "indexer_state"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("missing table %s", table)
		}
	}
}
