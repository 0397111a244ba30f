package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/matzehuels/nftgen/pkg/errors"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

// exerciseCache runs the shared Cache contract against a backend.
func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, hit, err := c.Get(ctx, "missing"); err != nil || hit {
		t.Fatalf("Get(missing) = hit %v, err %v; want miss", hit, err)
	}

	if err := c.Set(ctx, "k", []byte{0, 1, 2, 255}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("Get(k) = hit %v, err %v; want hit", hit, err)
	}
	if string(data) != string([]byte{0, 1, 2, 255}) {
		t.Errorf("Get(k) = %v, want [0 1 2 255]", data)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}

	if err := c.Set(ctx, "short", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set with ttl: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "short"); hit {
		t.Error("expired entry should miss")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	exerciseCache(t, c)

	ctx := context.Background()
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	exerciseCache(t, c)

	ctx := context.Background()
	if err := c.Set(ctx, "persist", []byte("layer"), 0); err != nil {
		t.Fatal(err)
	}

	// A second instance over the same directory sees the entry.
	c2, err := NewFileCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	data, hit, err := c2.Get(ctx, "persist")
	if err != nil || !hit || string(data) != "layer" {
		t.Errorf("reopened Get = (%q, %v, %v), want (layer, true, nil)", data, hit, err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Clear should remove the cache directory, stat err = %v", err)
	}
}

func TestFileCacheTruncatedEntry(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("data"), 0)
	if err := os.WriteFile(c.path("k"), []byte{1, 2}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("truncated entry: hit %v err %v, want miss", hit, err)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("NFTGEN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NFTGEN_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, addr, "nftgen-test:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	exerciseCache(t, c)

	_ = c.Set(ctx, "a", []byte("1"), 0)
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("Get after Clear should miss")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		opts Options
		want errors.Code
	}{
		{"default is memory", Options{}, ""},
		{"memory", Options{Backend: BackendMemory}, ""},
		{"none", Options{Backend: BackendNone}, ""},
		{"file", Options{Backend: BackendFile, Dir: t.TempDir()}, ""},
		{"file without dir", Options{Backend: BackendFile}, errors.ErrCodeInvalidInput},
		{"redis without addr", Options{Backend: BackendRedis}, errors.ErrCodeInvalidInput},
		{"unknown", Options{Backend: "memcached"}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(ctx, tt.opts)
			if tt.want == "" && err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if tt.want != "" && !errors.Is(err, tt.want) {
				t.Fatalf("Open() error = %v, want %s", err, tt.want)
			}
			if c != nil {
				c.Close()
			}
		})
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// SHA-256 produces 64 hex chars
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	lk1 := k.LayerKey("layers/eyes/blue#3.png", 100, mtime)
	lk2 := k.LayerKey("layers/eyes/blue#3.png", 100, mtime)
	if lk1 != lk2 {
		t.Error("LayerKey should be deterministic")
	}
	if k.LayerKey("layers/eyes/blue#3.png", 101, mtime) == lk1 {
		t.Error("size change should change LayerKey")
	}
	if k.LayerKey("layers/eyes/blue#3.png", 100, mtime.Add(time.Second)) == lk1 {
		t.Error("mtime change should change LayerKey")
	}
	if lk1[:6] != "layer:" {
		t.Errorf("LayerKey should start with layer:, got %s", lk1)
	}

	if k.PaletteKey("abc", 3) == k.PaletteKey("abc", 4) {
		t.Error("different cluster counts should produce different keys")
	}
}
