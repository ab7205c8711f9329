package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	db, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
}

func TestWithTx_Rollback(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	testErr := errors.New("test error")
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO banned_users (user_id) VALUES (?)", 7); err != nil {
			return err
		}
		return testErr
	})
	if !errors.Is(err, testErr) {
		t.Errorf("WithTx error = %v, want %v", err, testErr)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM banned_users").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 (should be rolled back)", count)
	}
}

func TestBanStore(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "bans.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	store := NewBanStore(db)

	ids, err := store.Load()
	if err != nil {
		t.Fatalf("Load on empty table: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Load = %v, want empty", ids)
	}

	if err := store.Save([]int64{5, 3}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save([]int64{3, 9}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ids, err = store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 9 {
		t.Errorf("Load = %v, want [3 9]", ids)
	}
}
