package core

import (
	"testing"

	"entitycache/pkg/domain"
)

type hero struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Power string `json:"power,omitempty"`
}

func heroID(n int) domain.ID { return domain.IntID(int64(n)) }

func heroDefinition() *Definition[hero] {
	return Define[hero]("Hero", WithFilter(func(hs []hero, pattern string) []hero {
		out := make([]hero, 0, len(hs))
		for _, h := range hs {
			if h.Name == pattern || h.Power == pattern {
				out = append(out, h)
			}
		}
		return out
	}))
}

func villainDefinition() *Definition[domain.Record] {
	return DefineRecord("Villain", "key")
}

type fixture struct {
	heroes   *Definition[hero]
	villains *Definition[domain.Record]
	defs     *DefinitionService
	reducer  *CacheReducer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	heroes, villains := heroDefinition(), villainDefinition()
	defs, err := NewDefinitionService(heroes, villains)
	if err != nil {
		t.Fatalf("NewDefinitionService: %v", err)
	}
	return fixture{heroes: heroes, villains: villains, defs: defs, reducer: NewCacheReducer(defs)}
}

func heroAction(op domain.Operation) domain.EntityAction {
	return domain.NewEntityAction("Hero", op)
}

func mustReduce(t *testing.T, r *CacheReducer, cache domain.EntityCache, action domain.Action) domain.EntityCache {
	t.Helper()
	next, err := r.Reduce(cache, action)
	if err != nil {
		t.Fatalf("Reduce(%s): %v", action.Type(), err)
	}
	return next
}

func heroesOf(t *testing.T, cache domain.EntityCache) *domain.EntityCollection[hero] {
	t.Helper()
	c, ok := domain.CollectionOf[hero](cache, "Hero")
	if !ok {
		t.Fatalf("no Hero collection in %v", cache.Names())
	}
	return c
}

func sameIDs(got []domain.ID, want ...domain.ID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func assertConsistent[T any](t *testing.T, c *domain.EntityCollection[T]) {
	t.Helper()
	if len(c.IDs) != len(c.Entities) {
		t.Fatalf("%d ids but %d entities", len(c.IDs), len(c.Entities))
	}
	seen := make(map[domain.ID]bool, len(c.IDs))
	for _, id := range c.IDs {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if _, ok := c.Entities[id]; !ok {
			t.Fatalf("id %s has no entity", id)
		}
	}
}
