package gallery

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"  Alice  ", "alice"},
		{"BOB SMITH", "bob smith"},
		{"José", "josé"},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("bob smith"); got != "Bob Smith" {
		t.Errorf("DisplayName = %q, want Bob Smith", got)
	}
	if got := DisplayName("alice"); got != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got)
	}
}

func TestGallery_AddNormalizes(t *testing.T) {
	g := New()
	if err := g.Add("Alice", face.Embedding{3, 4}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	emb, ok := g.Get("alice")
	if !ok {
		t.Fatal("identity not found under normalized key")
	}
	if math.Abs(emb.Norm()-1) > 1e-6 {
		t.Errorf("stored embedding norm = %f, want 1", emb.Norm())
	}
	if g.Dimension() != 2 {
		t.Errorf("Dimension = %d, want 2", g.Dimension())
	}
}

func TestGallery_AddErrors(t *testing.T) {
	g := New()

	if err := g.Add("  ", face.Embedding{1, 0}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if err := g.Add("zero", face.Embedding{0, 0}); !errors.Is(err, face.ErrZeroNorm) {
		t.Errorf("expected ErrZeroNorm, got %v", err)
	}

	if err := g.Add("alice", face.Embedding{1, 0}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := g.Add("bob", face.Embedding{1, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGallery_KeysSorted(t *testing.T) {
	g := New()
	for _, k := range []string{"carol", "alice", "bob"} {
		if err := g.Add(k, face.Embedding{1, 1}); err != nil {
			t.Fatalf("Add(%s) failed: %v", k, err)
		}
	}
	// Replacing keeps a single entry.
	if err := g.Add("Bob", face.Embedding{1, 0}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	keys := g.Keys()
	want := []string{"alice", "bob", "carol"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	var visited []string
	g.Each(func(key string, _ face.Embedding) bool {
		visited = append(visited, key)
		return key != "bob"
	})
	if len(visited) != 2 {
		t.Errorf("Each should stop after bob, visited %v", visited)
	}
}

func TestGallery_Remove(t *testing.T) {
	g := New()
	_ = g.Add("alice", face.Embedding{1, 0})
	_ = g.Add("bob", face.Embedding{0, 1})

	if !g.Remove("ALICE") {
		t.Error("Remove should report existing identity")
	}
	if g.Remove("alice") {
		t.Error("Remove should report missing identity")
	}
	if g.Len() != 1 || g.Keys()[0] != "bob" {
		t.Errorf("unexpected gallery after remove: %v", g.Keys())
	}

	g.Remove("bob")
	if g.Dimension() != 0 {
		t.Errorf("empty gallery should have dimension 0, got %d", g.Dimension())
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gallery.json")
	store := NewFileStore(path, false, "")

	g := New()
	_ = g.Add("alice", face.Embedding{0.1, 0.2, 0.3})
	_ = g.Add("bob", face.Embedding{-0.5, 0.25, 0.125})

	ctx := context.Background()
	if err := store.Save(ctx, g); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertSameGallery(t, g, loaded)

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}
}

func TestFileStore_Encrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.enc")
	store := NewFileStore(path, true, "correct horse")

	g := New()
	_ = g.Add("alice", face.Embedding{1, 2, 3})

	ctx := context.Background()
	if err := store.Save(ctx, g); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(raw[:len(encryptedMagic)]) != string(encryptedMagic) {
		t.Error("encrypted file should start with the header")
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameGallery(t, g, loaded)

	wrong := NewFileStore(path, true, "wrong")
	if _, err := wrong.Load(ctx); !errors.Is(err, ErrEncryption) {
		t.Errorf("expected ErrEncryption with wrong passphrase, got %v", err)
	}
}

func TestFileStore_Missing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.json"), false, "")

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNoGallery) {
		t.Errorf("expected ErrNoGallery, got %v", err)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	if err := os.WriteFile(path, []byte(`{"identities": {"alice": [0, 0]}}`), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := NewFileStore(path, false, "").Load(context.Background()); err == nil {
		t.Error("expected error for zero-norm stored embedding")
	}
}

func TestFromMap_DuplicateKeys(t *testing.T) {
	m := map[string][]float32{
		"Alice":  {1, 0},
		"alice ": {0, 1},
	}
	// Map order is random; every run must fail the same way.
	for i := 0; i < 20; i++ {
		if _, err := FromMap(m); !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("expected ErrDuplicateKey, got %v", err)
		}
	}

	if _, err := FromMap(map[string][]float32{"alice": {1, 0}, "bob": {0, 1}}); err != nil {
		t.Errorf("distinct keys should load: %v", err)
	}
}

func TestFileStore_DuplicateKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	data := `{"version": 1, "identities": {"Alice": [1, 0], "alice": [0, 1]}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := NewFileStore(path, false, "").Load(context.Background()); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestLoadNonEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	store := NewFileStore(path, false, "")
	ctx := context.Background()

	if err := store.Save(ctx, New()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := LoadNonEmpty(ctx, store); !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("expected ErrEmptyGallery, got %v", err)
	}

	g := New()
	_ = g.Add("alice", face.Embedding{1, 0})
	if err := store.Save(ctx, g); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadNonEmpty(ctx, store)
	if err != nil {
		t.Fatalf("LoadNonEmpty failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("expected 1 identity, got %d", loaded.Len())
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	s, err := Open(context.Background(), Options{Backend: "file", Path: "g.json"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	url := os.Getenv("FACEROLL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FACEROLL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer store.Close()

	g := New()
	_ = g.Add("alice", face.Embedding{0.1, 0.2, 0.3})
	_ = g.Add("bob", face.Embedding{0.3, 0.2, 0.1})

	if err := store.Save(ctx, g); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameGallery(t, g, loaded)
}

func assertSameGallery(t *testing.T, want, got *Gallery) {
	t.Helper()

	if got.Len() != want.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), want.Len())
	}
	want.Each(func(key string, emb face.Embedding) bool {
		other, ok := got.Get(key)
		if !ok {
			t.Errorf("identity %s missing", key)
			return true
		}
		for i := range emb {
			if emb[i] != other[i] {
				t.Errorf("identity %s value %d = %v, want %v", key, i, other[i], emb[i])
			}
		}
		return true
	})
}
