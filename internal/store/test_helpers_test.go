package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/replica/internal/entity"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCollection opens a Record collection on a fresh store.
func createTestCollection(t *testing.T, typ entity.Type) (*Store, *Collection[entity.Record]) {
	t.Helper()
	s := createTestStore(t)
	c, err := OpenCollection(context.Background(), s, typ, entity.JSONCodec[entity.Record]{})
	if err != nil {
		t.Fatalf("OpenCollection() failed: %v", err)
	}
	return s, c
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestRecord creates a record updated n hours after testEpoch.
func createTestRecord(id string, n int) entity.Record {
	return entity.NewRecord(id, testEpoch.Add(time.Duration(n)*time.Hour), map[string]any{"name": id})
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index: %v", err)
		}
		names = append(names, name)
	}
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
