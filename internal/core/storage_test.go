package core

import (
	"context"
	"path/filepath"
	"testing"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStore(t *testing.T) {
	store, err := OpenPersistentStore(StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "nested", "crm.db")
	store, err = OpenPersistentStore(StorageConfig{Driver: StorageSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = store.Close() }()
	sq, ok := store.(*sqlite.Store)
	if !ok || sq.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping sqlite: %v", err)
	}

	if _, err := OpenPersistentStore(StorageConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
