package redisad_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	redisad "product_reviews/internal/adapters/redis"
)

func TestCache_RoundTrip(t *testing.T) {
	m := miniredis.RunT(t)
	c := redisad.New(m.Addr(), "", 0)
	ctx := context.Background()

	type payload struct {
		Name  string
		Count int
	}

	var out payload
	ok, err := c.Get(ctx, "k", &out)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "k", payload{Name: "a", Count: 2}, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = c.Get(ctx, "k", &out)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if out.Name != "a" || out.Count != 2 {
		t.Fatalf("got %+v", out)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, _ = c.Get(ctx, "k", &out)
	if ok {
		t.Fatal("expected miss after del")
	}
}
