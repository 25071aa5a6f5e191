package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDriver(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"invalid", Dialect("invalid"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, err := New(tt.dialect)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if drv == nil {
				t.Error("expected driver, got nil")
			}
		})
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSQLiteDriver(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	drv := NewSQLite()
	if err := drv.Open(dbPath); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = drv.Close() }()

	if drv.Dialect() != DialectSQLite {
		t.Errorf("Dialect() = %v, want %v", drv.Dialect(), DialectSQLite)
	}
	if drv.Placeholder(1) != "?" {
		t.Errorf("Placeholder(1) = %v, want ?", drv.Placeholder(1))
	}
	if drv.Now() != "datetime('now')" {
		t.Errorf("Now() = %v, want datetime('now')", drv.Now())
	}
	if drv.DB() == nil {
		t.Error("DB() returned nil")
	}

	ctx := context.Background()
	if _, err := drv.Exec(ctx, "CREATE TABLE merges (id INTEGER PRIMARY KEY, outcome TEXT)"); err != nil {
		t.Fatalf("Exec CREATE TABLE failed: %v", err)
	}

	result, err := drv.Exec(ctx, "INSERT INTO merges (outcome) VALUES (?)", "merged")
	if err != nil {
		t.Fatalf("Exec INSERT failed: %v", err)
	}
	if id, _ := result.LastInsertId(); id != 1 {
		t.Errorf("LastInsertId() = %d, want 1", id)
	}

	rows, err := drv.Query(ctx, "SELECT id, outcome FROM merges WHERE id = ?", 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		t.Fatal("expected row, got none")
	}
	var gotID int
	var gotOutcome string
	if err := rows.Scan(&gotID, &gotOutcome); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if gotID != 1 || gotOutcome != "merged" {
		t.Errorf("got (%d, %q), want (1, merged)", gotID, gotOutcome)
	}

	var outcome string
	if err := drv.QueryRow(ctx, "SELECT outcome FROM merges WHERE id = ?", 1).Scan(&outcome); err != nil {
		t.Fatalf("QueryRow Scan failed: %v", err)
	}
	if outcome != "merged" {
		t.Errorf("got %q, want merged", outcome)
	}

	tx, err := drv.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO merges (outcome) VALUES (?)", "conflicted"); err != nil {
		t.Fatalf("tx.Exec failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("tx.Commit failed: %v", err)
	}

	var count int
	if err := drv.QueryRow(ctx, "SELECT COUNT(*) FROM merges").Scan(&count); err != nil {
		t.Fatalf("count scan failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	tx2, _ := drv.BeginTx(ctx, nil)
	_, _ = tx2.Exec(ctx, "INSERT INTO merges (outcome) VALUES (?)", "aborted")
	if err := tx2.Rollback(); err != nil {
		t.Fatalf("tx.Rollback failed: %v", err)
	}

	if err := drv.QueryRow(ctx, "SELECT COUNT(*) FROM merges").Scan(&count); err != nil {
		t.Fatalf("count scan failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count after rollback = %d, want 2", count)
	}
}

func TestSQLiteDriverClose(t *testing.T) {
	drv := NewSQLite()

	// Close without Open should not error
	if err := drv.Close(); err != nil {
		t.Errorf("Close without Open failed: %v", err)
	}
}

func TestPostgresDriverPlaceholder(t *testing.T) {
	drv := NewPostgres()

	tests := []struct {
		index int
		want  string
	}{
		{1, "$1"},
		{2, "$2"},
		{10, "$10"},
	}

	for _, tt := range tests {
		if got := drv.Placeholder(tt.index); got != tt.want {
			t.Errorf("Placeholder(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestPostgresDriverDialect(t *testing.T) {
	drv := NewPostgres()

	if drv.Dialect() != DialectPostgres {
		t.Errorf("Dialect() = %v, want %v", drv.Dialect(), DialectPostgres)
	}
	if drv.Now() != "NOW()" {
		t.Errorf("Now() = %v, want NOW()", drv.Now())
	}
}

func TestPostgresDriverClose(t *testing.T) {
	drv := NewPostgres()

	if err := drv.Close(); err != nil {
		t.Errorf("Close without Open failed: %v", err)
	}
}

func TestSQLiteMigrate(t *testing.T) {
	tmpDir := t.TempDir()

	drv := NewSQLite()
	if err := drv.Open(filepath.Join(tmpDir, "migrate_test.db")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = drv.Close() }()

	schemaDir := filepath.Join(tmpDir, "schema")
	if err := os.MkdirAll(schemaDir, 0755); err != nil {
		t.Fatalf("create schema dir: %v", err)
	}

	migration := `
		CREATE TABLE IF NOT EXISTS merge_history (
			id TEXT PRIMARY KEY,
			outcome TEXT NOT NULL
		);
	`
	if err := os.WriteFile(filepath.Join(schemaDir, "enso_001.sql"), []byte(migration), 0644); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	mockFS := &dirSchemaFS{dir: tmpDir}

	ctx := context.Background()
	if err := drv.Migrate(ctx, mockFS, "enso"); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	var name string
	err := drv.QueryRow(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='merge_history'").Scan(&name)
	if err != nil {
		t.Errorf("merge_history not created: %v", err)
	}

	// Running again must be a no-op.
	if err := drv.Migrate(ctx, mockFS, "enso"); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}

	var applied int
	if err := drv.QueryRow(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied migrations = %d, want 1", applied)
	}
}

func TestSQLiteMigrateSkipsForeignFiles(t *testing.T) {
	tmpDir := t.TempDir()

	drv := NewSQLite()
	if err := drv.Open(filepath.Join(tmpDir, "migrate_test.db")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = drv.Close() }()

	schemaDir := filepath.Join(tmpDir, "schema")
	if err := os.MkdirAll(filepath.Join(schemaDir, "postgres"), 0755); err != nil {
		t.Fatalf("create schema dir: %v", err)
	}
	files := map[string]string{
		"enso_001.sql":  "CREATE TABLE a (id INTEGER);",
		"other_001.sql": "CREATE TABLE never (id INTEGER);",
		"README":        "not sql",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(schemaDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if err := drv.Migrate(context.Background(), &dirSchemaFS{dir: tmpDir}, "enso"); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	var name string
	err := drv.QueryRow(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name='never'").Scan(&name)
	if err == nil {
		t.Error("migration with a different schema type was applied")
	}
}

// dirSchemaFS implements SchemaFS over a real directory for tests.
type dirSchemaFS struct {
	dir string
}

func (m *dirSchemaFS) ReadDir(name string) ([]DirEntry, error) {
	entries, err := os.ReadDir(filepath.Join(m.dir, name))
	if err != nil {
		return nil, err
	}
	result := make([]DirEntry, len(entries))
	for i, e := range entries {
		result[i] = dirEntry{e}
	}
	return result, nil
}

func (m *dirSchemaFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(m.dir, name))
}

type dirEntry struct {
	os.DirEntry
}

func (m dirEntry) Name() string { return m.DirEntry.Name() }
func (m dirEntry) IsDir() bool  { return m.DirEntry.IsDir() }
