package file

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vietddude/walletsync/internal/infra/storage"
)

func TestStore_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(ctx, storage.KeyLanguage, "en"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, storage.KeyLastRoute, "/wallet/contacts"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete(ctx, storage.KeyLastRoute); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, err := reloaded.Get(ctx, storage.KeyLanguage)
	if err != nil || v != "en" {
		t.Errorf("expected en, got %q (%v)", v, err)
	}
	if _, err := reloaded.Get(ctx, storage.KeyLastRoute); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestStore_OpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing", "kv.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	v, err := storage.GetOrDefault(context.Background(), s, storage.KeyLanguage, "es")
	if err != nil || v != "es" {
		t.Errorf("expected default es, got %q (%v)", v, err)
	}
}
