package dataservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"entitycache/internal/core"
	"entitycache/pkg/domain"
)

func TestMemoryDataService(t *testing.T) {
	svc := NewMemory(heroDefinition(), WithMemoryIDs(assignHeroID))
	if svc.Name() != "memory:Hero" {
		t.Fatalf("unexpected name %q", svc.Name())
	}
	exerciseDataService(t, svc)
}

func TestMemoryAddWithoutAssignerFails(t *testing.T) {
	svc := NewMemory(heroDefinition())
	_, err := svc.Add(context.Background(), hero{Name: "Anonymous"})
	if err == nil || !strings.Contains(err.Error(), "no id") {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

func TestMemorySeedKeepsOrderAndOverwrites(t *testing.T) {
	svc := NewMemory(heroDefinition(), WithSeed(
		hero{ID: 5, Name: "Celeritas"},
		hero{ID: 3, Name: "Narco"},
		hero{ID: 5, Name: "Celeritas II"},
	))
	all, err := svc.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if got := names(all); len(got) != 2 || got[0] != "Celeritas II" || got[1] != "Narco" {
		t.Fatalf("unexpected seeded entities %v", got)
	}
}

func TestMemoryUpdateUsesDefinitionMerge(t *testing.T) {
	villains := core.DefineRecord("Villain", "key")
	svc := NewMemory(villains, WithSeed(domain.Record{"key": "DE", "name": "Dr Evil", "lair": "moon"}))
	got, err := svc.Update(context.Background(), domain.Record{"key": "DE", "name": "Dr. Evil"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got["lair"] != "moon" || got["name"] != "Dr. Evil" {
		t.Fatalf("expected merged record, got %v", got)
	}
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	svc := NewMemory(heroDefinition())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.GetAll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := svc.Delete(ctx, domain.IntID(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNextIDIgnoresStringIDs(t *testing.T) {
	got := nextID([]domain.ID{domain.StringID("x"), domain.IntID(4), domain.IntID(2)})
	if n, ok := got.Int(); !ok || n != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
	if n, _ := nextID(nil).Int(); n != 1 {
		t.Fatalf("expected 1 for empty ids, got %d", n)
	}
}

func TestMatchesRejectsNonObjects(t *testing.T) {
	if _, err := matches(42, domain.QueryParams{"id": "1"}); err == nil {
		t.Fatal("expected error for non-object entity")
	}
	ok, err := matches(42, nil)
	if err != nil || !ok {
		t.Fatalf("empty params should match anything, got %v %v", ok, err)
	}
}
