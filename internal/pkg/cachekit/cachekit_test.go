package cachekit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	pkgredis "github.com/shareloom/core/internal/pkg/redis"
)

func testCoordinator(t *testing.T) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(pkgredis.Wrap(rdb), zap.NewNop()), mr
}

func TestGetMissThenHit(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("empty cache must miss")
	}

	c.Set(ctx, "k", []byte("v"), time.Minute)
	raw, ok := c.Get(ctx, "k")
	if !ok || string(raw) != "v" {
		t.Fatalf("got %q ok=%v, want v", raw, ok)
	}
}

func TestBackendErrorDegradesToMiss(t *testing.T) {
	c, mr := testCoordinator(t)
	mr.Close()

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("backend error must read as a miss, never an error")
	}
}

func TestGetJSONDropsPoisonedEntry(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("{not json"), time.Minute)

	var dest map[string]string
	if c.GetJSON(ctx, "k", &dest) {
		t.Fatal("corrupt entry must read as a miss")
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("corrupt entry must be invalidated on read")
	}
}

func TestSetJSONRoundTrip(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	c.SetJSON(ctx, "k", map[string]int{"n": 7}, 0)

	var dest map[string]int
	if !c.GetJSON(ctx, "k", &dest) {
		t.Fatal("expected hit")
	}
	if dest["n"] != 7 {
		t.Fatalf("dest=%v", dest)
	}
}

func TestSetAppliesDefaultTTL(t *testing.T) {
	c, mr := testCoordinator(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)

	ttl := mr.TTL(Namespace + "k")
	if ttl != DefaultTTL {
		t.Fatalf("ttl=%v, want %v", ttl, DefaultTTL)
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	c.Invalidate(ctx, "a", "b")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("a should be gone")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("b should be gone")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	c.Set(ctx, "contents:list:p1:s20", []byte("1"), time.Minute)
	c.Set(ctx, "contents:list:p2:s20", []byte("2"), time.Minute)
	c.Set(ctx, "contents:one:xyz", []byte("3"), time.Minute)

	deleted := c.InvalidatePrefix(ctx, "contents:list:")
	if deleted != 2 {
		t.Fatalf("deleted=%d, want 2", deleted)
	}
	if _, ok := c.Get(ctx, "contents:one:xyz"); !ok {
		t.Fatal("unrelated key must survive prefix invalidation")
	}
}
