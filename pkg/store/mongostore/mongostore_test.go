package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/nftgen/pkg/metadata"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("NFTGEN_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("NFTGEN_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, Config{URI: uri, Database: "nftgen_test"}, "test-"+uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_ = s.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestPublishUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := metadata.Record{
		Description: "d",
		Name:        "Punks #4",
		Image:       metadata.PlaceholderURI(4),
		Attributes:  []metadata.Attribute{{TraitType: "background", Value: "blue"}},
	}
	if err := s.Publish(ctx, 4, rec); err != nil {
		t.Fatal(err)
	}
	rec.Image = "ipfs://cid/4.png"
	if err := s.Publish(ctx, 4, rec); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1 after upsert", n)
	}

	got, ok, err := s.Get(ctx, 4)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Image != "ipfs://cid/4.png" || got.Attributes[0].Value != "blue" {
		t.Errorf("Get() = %+v", got)
	}

	if _, ok, _ := s.Get(ctx, 99); ok {
		t.Error("Get(99) should miss")
	}
}

func TestOpenRequiresURI(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, "x"); err == nil {
		t.Error("Open without URI should fail")
	}
}
