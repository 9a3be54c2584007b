package core

import (
	"errors"
	"reflect"
	"regexp"
	"testing"

	"entitycache/pkg/domain"
)

func TestAddOneToEmptyCache(t *testing.T) {
	f := newFixture(t)
	next := mustReduce(t, f.reducer, domain.EntityCache{}, heroAction(domain.AddOne[hero]{Entity: hero{ID: 42, Name: "Bobby"}}))
	heroes := heroesOf(t, next)
	if !sameIDs(heroes.IDs, heroID(42)) {
		t.Fatalf("ids=%v", heroes.IDs)
	}
	if got, _ := heroes.Get(heroID(42)); got != (hero{ID: 42, Name: "Bobby"}) {
		t.Fatalf("entity=%+v", got)
	}
}

func TestEntityActionKeepsOtherCollections(t *testing.T) {
	f := newFixture(t)
	villains := f.villains.Collection(domain.Record{"key": "DE"})
	cache := domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 1}), "Villain": villains}
	next := mustReduce(t, f.reducer, cache, heroAction(domain.AddOne[hero]{Entity: hero{ID: 2}}))
	if next["Villain"] != villains {
		t.Fatalf("Villain collection should keep its reference")
	}
	if heroesOf(t, cache).Len() != 1 {
		t.Fatalf("input cache was modified")
	}
}

func TestEntityActionNoOpReturnsSameCache(t *testing.T) {
	f := newFixture(t)
	cache := domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 1})}
	next := mustReduce(t, f.reducer, cache, heroAction(domain.DeleteOne{ID: heroID(99)}))
	if reflect.ValueOf(next).Pointer() != reflect.ValueOf(cache).Pointer() {
		t.Fatalf("expected the same cache map for a no-op")
	}
}

func TestFirstReferenceCreatesCollection(t *testing.T) {
	f := newFixture(t)
	next := mustReduce(t, f.reducer, domain.EntityCache{}, heroAction(domain.SetLoaded{Loaded: false}))
	if c := heroesOf(t, next); c.Len() != 0 || c.Name != "Hero" {
		t.Fatalf("expected fresh empty Hero collection, got %+v", c)
	}
}

func TestSetEntityCache(t *testing.T) {
	f := newFixture(t)
	cache := domain.EntityCache{
		"Hero":    f.heroes.Collection(hero{ID: 2}, hero{ID: 1}),
		"Villain": f.villains.Collection(domain.Record{"key": "DE"}),
	}

	cleared := mustReduce(t, f.reducer, cache, domain.SetEntityCache{Cache: domain.EntityCache{}})
	if len(cleared) != 0 {
		t.Fatalf("expected empty cache, got %v", cleared.Names())
	}

	replacement := f.heroes.Collection(hero{ID: 42, Name: "Bobby"})
	next := mustReduce(t, f.reducer, cache, domain.SetEntityCache{Cache: domain.EntityCache{"Hero": replacement}})
	if _, ok := next["Villain"]; ok {
		t.Fatalf("Villain should be absent after full replace")
	}
	if next["Hero"] != replacement || !sameIDs(heroesOf(t, next).IDs, heroID(42)) {
		t.Fatalf("Hero should be the payload collection")
	}
	if len(cache) != 2 {
		t.Fatalf("input cache was modified")
	}
}

func TestMergeQuerySet(t *testing.T) {
	f := newFixture(t)
	villains := f.villains.Collection(domain.Record{"key": "DE"})
	cache := domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 2}, hero{ID: 1}), "Villain": villains}

	next := mustReduce(t, f.reducer, cache, domain.MergeQuerySet{QuerySet: domain.EntityCacheQuerySet{
		"Hero": []hero{{ID: 42, Name: "Bobby"}},
	}})
	heroes := heroesOf(t, next)
	assertConsistent(t, heroes)
	if !sameIDs(heroes.IDs, heroID(2), heroID(1), heroID(42)) {
		t.Fatalf("ids=%v want [2 1 42]", heroes.IDs)
	}
	if next["Villain"] != villains {
		t.Fatalf("Villain should keep its reference")
	}
}

func TestMergeEmptyQuerySetIsIdentity(t *testing.T) {
	f := newFixture(t)
	cache := domain.EntityCache{
		"Hero":    f.heroes.Collection(hero{ID: 2}, hero{ID: 1}),
		"Villain": f.villains.Collection(domain.Record{"key": "DE"}),
	}
	for _, qs := range []domain.EntityCacheQuerySet{nil, {}} {
		next := mustReduce(t, f.reducer, cache, domain.MergeQuerySet{QuerySet: qs})
		if !reflect.DeepEqual(next, cache) {
			t.Fatalf("expected deep-equal cache")
		}
		for name, c := range cache {
			if next[name] != c {
				t.Fatalf("%s should keep its reference", name)
			}
		}
	}
}

func TestMergeQuerySetCreatesMissingCollections(t *testing.T) {
	f := newFixture(t)
	next := mustReduce(t, f.reducer, domain.EntityCache{}, domain.MergeQuerySet{QuerySet: domain.EntityCacheQuerySet{
		"Villain": []any{domain.Record{"key": "DE"}, domain.Record{"key": "OB"}},
	}})
	v, ok := domain.CollectionOf[domain.Record](next, "Villain")
	if !ok || !sameIDs(v.IDs, domain.StringID("DE"), domain.StringID("OB")) || !v.Loaded {
		t.Fatalf("unexpected Villain collection %+v", v)
	}
}

func TestLoadCollectionsReplacesNamedOnly(t *testing.T) {
	f := newFixture(t)
	villains := f.villains.Collection(domain.Record{"key": "DE"})
	cache := domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 2}, hero{ID: 1}), "Villain": villains}
	next := mustReduce(t, f.reducer, cache, domain.LoadCollections{QuerySet: domain.EntityCacheQuerySet{
		"Hero": []hero{{ID: 42}},
	}})
	if !sameIDs(heroesOf(t, next).IDs, heroID(42)) {
		t.Fatalf("Hero should be replaced, got %v", heroesOf(t, next).IDs)
	}
	if next["Villain"] != villains {
		t.Fatalf("Villain should keep its reference")
	}
}

func TestClearCollections(t *testing.T) {
	f := newFixture(t)
	cache := domain.EntityCache{
		"Hero":    f.heroes.Collection(hero{ID: 1}),
		"Villain": f.villains.Collection(domain.Record{"key": "DE"}),
	}
	one := mustReduce(t, f.reducer, cache, domain.ClearCollections{EntityNames: []string{"Hero"}})
	if heroesOf(t, one).Len() != 0 || one["Villain"] != cache["Villain"] {
		t.Fatalf("only Hero should be cleared")
	}
	all := mustReduce(t, f.reducer, cache, domain.ClearCollections{})
	for _, name := range []string{"Hero", "Villain"} {
		if all[name].Len() != 0 {
			t.Fatalf("%s should be empty", name)
		}
	}
}

func TestUnknownEntityTypeFails(t *testing.T) {
	f := newFixture(t)
	pattern := regexp.MustCompile(`(?i)no EntityDefinition`)
	actions := []domain.Action{
		domain.NewEntityAction("Sidekick", domain.QueryAll{}),
		domain.MergeQuerySet{QuerySet: domain.EntityCacheQuerySet{"Sidekick": []any{}}},
		domain.ClearCollections{EntityNames: []string{"Sidekick"}},
	}
	for _, action := range actions {
		_, err := f.reducer.Reduce(domain.EntityCache{}, action)
		if err == nil || !pattern.MatchString(err.Error()) {
			t.Fatalf("%s: expected no EntityDefinition error, got %v", action.Type(), err)
		}
		var unknown *domain.UnknownEntityTypeError
		if !errors.As(err, &unknown) || unknown.EntityName != "Sidekick" {
			t.Fatalf("%s: expected UnknownEntityTypeError, got %T", action.Type(), err)
		}
	}
}

type otherAction struct{}

func (otherAction) Type() string { return "[Router] navigate" }

func TestUnrecognizedActionPassesThrough(t *testing.T) {
	f := newFixture(t)
	cache := domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 1})}
	next := mustReduce(t, f.reducer, cache, otherAction{})
	if next["Hero"] != cache["Hero"] || len(next) != 1 {
		t.Fatalf("unrecognized action should leave the cache alone")
	}
	var nilAction *domain.EntityAction
	if got := mustReduce(t, f.reducer, cache, nilAction); len(got) != 1 {
		t.Fatalf("nil entity action should be ignored")
	}
}

func TestReducerFuncMatchesReduce(t *testing.T) {
	f := newFixture(t)
	fn := f.reducer.Reducer()
	next, err := fn(nil, heroAction(domain.AddOne[hero]{Entity: hero{ID: 1}}))
	if err != nil || heroesOf(t, next).Len() != 1 {
		t.Fatalf("ReducerFunc result %v %v", next, err)
	}
}
