package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"learner-progress-service/internal/domain"
)

func TestKVStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewKVStore(newClient(mr), "progress:", time.Hour, 0)

	if _, ok, err := store.Get(ctx, "moduleMastery"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "moduleMastery", `{"m1":{}}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("progress:moduleMastery") {
		t.Fatalf("expected prefixed redis key to be set")
	}
	if ttl := mr.TTL("progress:moduleMastery"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	v, ok, err := store.Get(ctx, "moduleMastery")
	if err != nil || !ok || v != `{"m1":{}}` {
		t.Fatalf("unexpected get %q ok=%v err=%v", v, ok, err)
	}

	if err := store.Remove(ctx, "moduleMastery"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mr.Exists("progress:moduleMastery") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestKVStoreValueLimitIsQuotaError(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewKVStore(newClient(mr), "p:", 0, 16)
	err = store.Set(context.Background(), "userProgress", strings.Repeat("x", 17))
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if mr.Exists("p:userProgress") {
		t.Fatalf("oversized value must not be written")
	}
}

func TestKVStoreSurfacesConnectionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	store := NewKVStore(client, "p:", 0, 0)
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from closed server")
	}
	if err := store.Set(context.Background(), "k", "v"); err == nil || errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected plain storage error, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
}
