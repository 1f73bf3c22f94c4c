package redis_tools

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestRefDaoWithoutClient(t *testing.T) {
	dao := NewRefDao(nil, "orb")
	if dao.Key() != "orb:initial_refs:orb" {
		t.Fatalf("key = %q", dao.Key())
	}
	if _, err := dao.LoadInitialRefs(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

// Set ORB_TEST_REDIS_ADDR to run against a live server.
func TestRefDaoRoundTrip(t *testing.T) {
	addr := os.Getenv("ORB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := NewClient(RedisConfig{Addr: addr})
	defer client.Close()

	dao := NewRefDao(client, "test-"+t.Name())
	defer client.Del(ctx, dao.Key())

	if err := dao.PutRef(ctx, "NameService", "IOR:00"); err != nil {
		t.Fatal(err)
	}
	refs, err := dao.LoadInitialRefs(ctx)
	if err != nil || refs["NameService"] != "IOR:00" {
		t.Fatalf("refs = %v, %v", refs, err)
	}
	if v, err := dao.GetRef(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("missing = %q, %v", v, err)
	}
	if ok, _ := dao.DeleteRef(ctx, "NameService"); !ok {
		t.Fatal("delete reported missing entry")
	}
}
