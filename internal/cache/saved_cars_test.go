package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"carhub/pkg/domain"
)

func TestRedisSavedCarsCacheRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	c := NewRedisSavedCarsCache(redis.Addr(), "", time.Minute)

	if _, ok := c.Get("user-1"); ok {
		t.Fatalf("unexpected hit on empty cache")
	}

	cars := []domain.Car{{ID: "car-1", Make: "Honda", Model: "Civic", Price: 20000, Wishlisted: true}}
	c.Set("user-1", cars)

	got, ok := c.Get("user-1")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if len(got) != 1 || got[0].ID != "car-1" || !got[0].Wishlisted {
		t.Fatalf("cached cars = %+v", got)
	}

	c.Invalidate("user-1")
	if _, ok := c.Get("user-1"); ok {
		t.Fatalf("hit after invalidation")
	}
}

func TestRedisSavedCarsCacheExpires(t *testing.T) {
	redis := miniredis.RunT(t)
	c := NewRedisSavedCarsCache(redis.Addr(), "", time.Second)

	c.Set("user-1", []domain.Car{{ID: "car-1"}})
	redis.FastForward(2 * time.Second)

	if _, ok := c.Get("user-1"); ok {
		t.Fatalf("hit after TTL expiry")
	}
}

func TestRedisSavedCarsCacheIsolatesUsers(t *testing.T) {
	redis := miniredis.RunT(t)
	c := NewRedisSavedCarsCache(redis.Addr(), "", time.Minute)

	c.Set("user-1", []domain.Car{{ID: "car-1"}})
	c.Set("user-2", []domain.Car{{ID: "car-2"}})
	c.Invalidate("user-1")

	if _, ok := c.Get("user-1"); ok {
		t.Fatalf("user-1 survived invalidation")
	}
	got, ok := c.Get("user-2")
	if !ok || len(got) != 1 || got[0].ID != "car-2" {
		t.Fatalf("user-2 entry = (%+v, %v)", got, ok)
	}
}
