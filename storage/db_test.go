package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseBatch(t *testing.T, db Database) {
	t.Helper()
	if err := db.Put([]byte("stale"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := db.WriteBatch(
		map[string][]byte{"a": []byte("1"), "b": []byte("2"), "both": []byte("3")},
		map[string]struct{}{"stale": {}, "both": {}},
	)
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if got, err := db.Get([]byte("a")); err != nil || string(got) != "1" {
		t.Fatalf("get a: %q %v", got, err)
	}
	for _, key := range []string{"stale", "both", "missing"} {
		if _, err := db.Get([]byte(key)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s to be absent, got %v", key, err)
		}
	}
	if err := db.Delete([]byte("missing")); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
}

func TestMemDBWriteBatch(t *testing.T) {
	db := NewMemDB()
	exerciseBatch(t, db)
	if db.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", db.Len())
	}
}

func TestLevelDBWriteBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseBatch(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got, err := reopened.Get([]byte("b")); err != nil || string(got) != "2" {
		t.Fatalf("value not persisted: %q %v", got, err)
	}
}
