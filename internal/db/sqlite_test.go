package db

import (
	"path/filepath"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	for _, table := range []string{"users", "editor_activity"} {
		var name string
		err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s, got %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	for i := 0; i < 2; i++ {
		database, err := Open(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		database.Close()
	}
}

func TestNewTestDBIsolated(t *testing.T) {
	a, err := NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := a.Exec(`INSERT INTO users (username, color) VALUES ('alice', '#E63946')`); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := b.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected isolated databases, got %d users", n)
	}
}
