package snapshots

import "testing"

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d (%v)", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
}

func TestLRUCache_EvictWhereAndClear(t *testing.T) {
	c := NewLRUCache[cacheKey, int](0)
	if c.Cap() != 1 {
		t.Fatalf("expected capacity normalised to 1, got %d", c.Cap())
	}

	c = NewLRUCache[cacheKey, int](8)
	c.Put(cacheKey{"g", 1}, 1)
	c.Put(cacheKey{"g", 2}, 2)
	c.Put(cacheKey{"h", 1}, 3)
	if n := c.EvictWhere(func(k cacheKey) bool { return k.name == "g" }); n != 2 {
		t.Fatalf("expected 2 evictions, got %d", n)
	}
	if _, ok := c.Get(cacheKey{"h", 1}); !ok {
		t.Fatal("expected h to survive")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}
