package dataservice

import (
	"context"
	"errors"
	"testing"

	"entitycache/internal/core"
	"entitycache/pkg/domain"
)

type hero struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Power string `json:"power,omitempty"`
}

func heroDefinition() *core.Definition[hero] { return core.Define[hero]("Hero") }

func assignHeroID(h hero, id domain.ID) hero {
	n, _ := id.Int()
	h.ID = int(n)
	return h
}

func names(hs []hero) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Name)
	}
	return out
}

// exerciseDataService runs the behaviour every data service shares. svc must
// be empty and assign ids to heroes added with ID 0.
func exerciseDataService(t *testing.T, svc domain.DataService[hero]) {
	t.Helper()
	ctx := context.Background()

	for _, h := range []hero{{ID: 2, Name: "Windstorm", Power: "wind"}, {ID: 1, Name: "Magneta", Power: "magnets"}} {
		if _, err := svc.Add(ctx, h); err != nil {
			t.Fatalf("Add(%v): %v", h, err)
		}
	}
	added, err := svc.Add(ctx, hero{Name: "Tornado", Power: "wind"})
	if err != nil {
		t.Fatalf("Add without id: %v", err)
	}
	if added.ID != 3 {
		t.Fatalf("expected generated id 3, got %d", added.ID)
	}
	if _, err := svc.Add(ctx, hero{ID: 1, Name: "Copy"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	all, err := svc.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if got := names(all); len(got) != 3 || got[0] != "Windstorm" || got[1] != "Magneta" || got[2] != "Tornado" {
		t.Fatalf("expected insertion order, got %v", got)
	}

	got, err := svc.GetByID(ctx, domain.IntID(1))
	if err != nil || got.Name != "Magneta" {
		t.Fatalf("GetByID(1) = %v, %v", got, err)
	}
	if _, err := svc.GetByID(ctx, domain.IntID(99)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	windy, err := svc.GetWithQuery(ctx, domain.QueryParams{"power": "wind"})
	if err != nil {
		t.Fatalf("GetWithQuery: %v", err)
	}
	if got := names(windy); len(got) != 2 || got[0] != "Windstorm" || got[1] != "Tornado" {
		t.Fatalf("unexpected query result %v", got)
	}
	byID, err := svc.GetWithQuery(ctx, domain.QueryParams{"id": "2"})
	if err != nil || len(byID) != 1 || byID[0].Name != "Windstorm" {
		t.Fatalf("numeric field query = %v, %v", byID, err)
	}

	updated, err := svc.Update(ctx, hero{ID: 1, Name: "Magneta", Power: "iron"})
	if err != nil || updated.Power != "iron" {
		t.Fatalf("Update = %v, %v", updated, err)
	}
	if _, err := svc.Update(ctx, hero{ID: 42, Name: "Nobody"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Update, got %v", err)
	}

	if _, err := svc.Upsert(ctx, hero{ID: 2, Name: "Windstorm II"}); err != nil {
		t.Fatalf("Upsert existing: %v", err)
	}
	if _, err := svc.Upsert(ctx, hero{ID: 7, Name: "Bombasto"}); err != nil {
		t.Fatalf("Upsert new: %v", err)
	}
	if got, _ := svc.GetByID(ctx, domain.IntID(2)); got.Name != "Windstorm II" {
		t.Fatalf("Upsert did not update: %v", got)
	}

	if err := svc.Delete(ctx, domain.IntID(3)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, domain.IntID(3)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	all, _ = svc.GetAll(ctx)
	if got := names(all); len(got) != 3 || got[2] != "Bombasto" {
		t.Fatalf("unexpected entities after delete: %v", got)
	}
}
