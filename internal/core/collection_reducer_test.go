package core

import (
	"errors"
	"testing"

	"entitycache/pkg/domain"
)

func TestCollectionReducerOps(t *testing.T) {
	def := heroDefinition()
	r := NewCollectionReducer(def)
	base := def.Collection(hero{ID: 2, Name: "B"}, hero{ID: 1, Name: "A"})

	cases := []struct {
		name    string
		op      domain.Operation
		ids     []domain.ID
		check   func(*testing.T, *domain.EntityCollection[hero])
		loaded  bool
		loading bool
	}{
		{name: "add one appends", op: domain.AddOne[hero]{Entity: hero{ID: 42, Name: "Bobby"}}, ids: []domain.ID{heroID(2), heroID(1), heroID(42)}},
		{name: "add one overwrites in place", op: domain.AddOne[hero]{Entity: hero{ID: 2, Name: "B2"}}, ids: []domain.ID{heroID(2), heroID(1)},
			check: func(t *testing.T, c *domain.EntityCollection[hero]) {
				if h, _ := c.Get(heroID(2)); h.Name != "B2" {
					t.Fatalf("expected overwrite, got %+v", h)
				}
			}},
		{name: "add many", op: domain.AddMany[hero]{Entities: []hero{{ID: 3}, {ID: 4}}}, ids: []domain.ID{heroID(2), heroID(1), heroID(3), heroID(4)}},
		{name: "update one", op: domain.UpdateOne[hero]{Entity: hero{ID: 1, Name: "A2"}}, ids: []domain.ID{heroID(2), heroID(1)},
			check: func(t *testing.T, c *domain.EntityCollection[hero]) {
				if h, _ := c.Get(heroID(1)); h.Name != "A2" {
					t.Fatalf("expected update, got %+v", h)
				}
			}},
		{name: "update many", op: domain.UpdateMany[hero]{Entities: []hero{{ID: 1, Name: "x"}, {ID: 9}}}, ids: []domain.ID{heroID(2), heroID(1)}},
		{name: "upsert one new", op: domain.UpsertOne[hero]{Entity: hero{ID: 5}}, ids: []domain.ID{heroID(2), heroID(1), heroID(5)}},
		{name: "upsert many", op: domain.UpsertMany[hero]{Entities: []hero{{ID: 1, Name: "y"}, {ID: 6}}}, ids: []domain.ID{heroID(2), heroID(1), heroID(6)}},
		{name: "delete one", op: domain.DeleteOne{ID: heroID(2)}, ids: []domain.ID{heroID(1)}},
		{name: "delete many", op: domain.DeleteMany{IDs: []domain.ID{heroID(1), heroID(2)}}, ids: nil},
		{name: "remove all", op: domain.RemoveAll{}, ids: nil},
		{name: "query all loading", op: domain.QueryAll{}, ids: []domain.ID{heroID(2), heroID(1)}, loading: true},
		{name: "query all success replaces", op: domain.QueryAllSuccess[hero]{Entities: []hero{{ID: 7}, {ID: 2}}}, ids: []domain.ID{heroID(7), heroID(2)}, loaded: true},
		{name: "query by key success upserts", op: domain.QueryByKeySuccess[hero]{Entity: hero{ID: 8}}, ids: []domain.ID{heroID(2), heroID(1), heroID(8)}},
		{name: "query many success merges", op: domain.QueryManySuccess[hero]{Entities: []hero{{ID: 42}, {ID: 1, Name: "z"}}}, ids: []domain.ID{heroID(2), heroID(1), heroID(42)}, loaded: true},
		{name: "save add loading", op: domain.SaveAddOne[hero]{Entity: hero{ID: 3}}, ids: []domain.ID{heroID(2), heroID(1)}, loading: true},
		{name: "save add success", op: domain.SaveAddOneSuccess[hero]{Entity: hero{ID: 3}}, ids: []domain.ID{heroID(2), heroID(1), heroID(3)}},
		{name: "save update success", op: domain.SaveUpdateOneSuccess[hero]{Entity: hero{ID: 2, Name: "q"}}, ids: []domain.ID{heroID(2), heroID(1)}},
		{name: "save upsert success", op: domain.SaveUpsertOneSuccess[hero]{Entity: hero{ID: 3}}, ids: []domain.ID{heroID(2), heroID(1), heroID(3)}},
		{name: "save delete success", op: domain.SaveDeleteOneSuccess{ID: heroID(1)}, ids: []domain.ID{heroID(2)}},
		{name: "set loading", op: domain.SetLoading{Loading: true}, ids: []domain.ID{heroID(2), heroID(1)}, loading: true},
		{name: "set loaded", op: domain.SetLoaded{Loaded: true}, ids: []domain.ID{heroID(2), heroID(1)}, loaded: true},
		{name: "set filter", op: domain.SetFilter{Pattern: "A"}, ids: []domain.ID{heroID(2), heroID(1)},
			check: func(t *testing.T, c *domain.EntityCollection[hero]) {
				if c.Filter != "A" {
					t.Fatalf("filter=%q", c.Filter)
				}
			}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := r.ReduceCollection(base, tc.op)
			if err != nil {
				t.Fatalf("ReduceCollection: %v", err)
			}
			assertConsistent(t, next)
			if !sameIDs(next.IDs, tc.ids...) {
				t.Fatalf("ids=%v want %v", next.IDs, tc.ids)
			}
			if next.Loaded != tc.loaded || next.Loading != tc.loading {
				t.Fatalf("loaded=%v loading=%v", next.Loaded, next.Loading)
			}
			if tc.check != nil {
				tc.check(t, next)
			}
			if base.Len() != 2 || base.Loading || base.Filter != "" {
				t.Fatalf("input collection was modified: %+v", base)
			}
		})
	}
}

func TestCollectionReducerNoOpsKeepIdentity(t *testing.T) {
	def := heroDefinition()
	r := NewCollectionReducer(def)
	base := def.Collection(hero{ID: 1})
	for _, op := range []domain.Operation{
		domain.UpdateOne[hero]{Entity: hero{ID: 9}},
		domain.DeleteOne{ID: heroID(9)},
		domain.DeleteMany{},
		domain.SetLoaded{Loaded: false},
		domain.SetLoading{Loading: false},
		domain.SetFilter{},
		domain.OpError{Failed: domain.OpQueryAll},
		domain.AddMany[hero]{},
	} {
		next, err := r.ReduceCollection(base, op)
		if err != nil {
			t.Fatalf("%s: %v", op.Op(), err)
		}
		if next != base {
			t.Fatalf("%s: expected same collection pointer", op.Op())
		}
	}
	empty := domain.NewEntityCollection[hero]("Hero")
	if next, _ := r.ReduceCollection(empty, domain.RemoveAll{}); next != empty {
		t.Fatalf("remove-all on empty collection should be a no-op")
	}
}

func TestCollectionReducerErrorClearsLoading(t *testing.T) {
	r := NewCollectionReducer(heroDefinition())
	loading, err := r.ReduceCollection(nil, domain.QueryAll{})
	if err != nil || !loading.Loading {
		t.Fatalf("expected loading collection, got %+v %v", loading, err)
	}
	done, err := r.ReduceCollection(loading, domain.OpError{Failed: domain.OpQueryAll, Err: errors.New("offline")})
	if err != nil || done.Loading || done.Len() != 0 {
		t.Fatalf("expected loading cleared, got %+v %v", done, err)
	}
}

func TestCollectionReducerRejectsBadPayloads(t *testing.T) {
	heroes := NewCollectionReducer(heroDefinition())
	villains := NewCollectionReducer(villainDefinition())
	cases := []struct {
		name string
		r    interface {
			Reduce(domain.Collection, domain.Operation) (domain.Collection, error)
		}
		c  domain.Collection
		op domain.Operation
	}{
		{"missing id", villains, nil, domain.AddOne[domain.Record]{Entity: domain.Record{"name": "nobody"}}},
		{"empty string id", villains, nil, domain.UpsertOne[domain.Record]{Entity: domain.Record{"key": ""}}},
		{"wrong entity type", heroes, nil, domain.AddOne[domain.Record]{Entity: domain.Record{"id": 1}}},
		{"wrong collection type", heroes, domain.NewEntityCollection[domain.Record]("Hero"), domain.RemoveAll{}},
		{"nil op", heroes, nil, nil},
	}
	for _, tc := range cases {
		if _, err := tc.r.Reduce(tc.c, tc.op); !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("%s: expected malformed payload, got %v", tc.name, err)
		}
	}
}

func TestCollectionReducerAcceptsZeroIntID(t *testing.T) {
	r := NewCollectionReducer(heroDefinition())
	next, err := r.ReduceCollection(nil, domain.AddOne[hero]{Entity: hero{Name: "Zero"}})
	if err != nil {
		t.Fatalf("ReduceCollection: %v", err)
	}
	if !sameIDs(next.IDs, heroID(0)) || next.Entities[heroID(0)].Name != "Zero" {
		t.Fatalf("next=%+v", next)
	}
}

func TestRecordReducerMergesFields(t *testing.T) {
	def := villainDefinition()
	r := NewCollectionReducer(def)
	base := def.Collection(domain.Record{"key": "DE", "name": "Dr Evil", "lair": "moon"})
	next, err := r.ReduceCollection(base, domain.UpdateOne[domain.Record]{Entity: domain.Record{"key": "DE", "name": "Doctor Evil"}})
	if err != nil {
		t.Fatalf("ReduceCollection: %v", err)
	}
	got, _ := next.Get(domain.StringID("DE"))
	if got["name"] != "Doctor Evil" || got["lair"] != "moon" {
		t.Fatalf("expected shallow merge, got %v", got)
	}
	if orig, _ := base.Get(domain.StringID("DE")); orig["name"] != "Dr Evil" {
		t.Fatalf("merge mutated stored record: %v", orig)
	}
}
