package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"entitycache/internal/infra/persistence/memory"
	"entitycache/pkg/domain"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestStoreDispatchSequencesState(t *testing.T) {
	f := newFixture(t)
	store := NewStore(f.reducer)
	ctx := context.Background()
	for _, op := range []domain.Operation{
		domain.AddOne[hero]{Entity: hero{ID: 2}},
		domain.AddOne[hero]{Entity: hero{ID: 1}},
		domain.UpdateOne[hero]{Entity: hero{ID: 2, Name: "B"}},
	} {
		if _, err := store.Dispatch(ctx, heroAction(op)); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	heroes := heroesOf(t, store.State())
	if !sameIDs(heroes.IDs, heroID(2), heroID(1)) {
		t.Fatalf("ids=%v", heroes.IDs)
	}
	if h, _ := heroes.Get(heroID(2)); h.Name != "B" {
		t.Fatalf("update lost: %+v", h)
	}
}

func TestStoreDispatchFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	store := NewStore(f.reducer,
		WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithInitialState(domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 1})}),
	)
	before := store.State()
	_, err := store.Dispatch(context.Background(), domain.NewEntityAction("Sidekick", domain.QueryAll{}))
	if !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Fatalf("expected unknown entity type, got %v", err)
	}
	if store.State()["Hero"] != before["Hero"] || len(store.State()) != 1 {
		t.Fatalf("state changed after failed dispatch")
	}
	if len(metrics.calls) != 1 || metrics.calls[0].success || metrics.calls[0].op != "[Sidekick] query-all" {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}
	if len(tracer.ended) != 1 || tracer.ended[0].err == nil {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}
	if !strings.Contains(logs.String(), "dispatch failed") {
		t.Fatalf("expected warn log, got %q", logs.String())
	}
	if _, err := store.Dispatch(context.Background(), nil); err == nil {
		t.Fatalf("expected nil action error")
	}
}

func TestStoreListeners(t *testing.T) {
	f := newFixture(t)
	store := NewStore(f.reducer)
	ctx := context.Background()
	var order []string
	var changes []Change
	cancelFirst := store.Subscribe(func(_ context.Context, c Change) {
		order = append(order, "first")
		changes = append(changes, c)
	})
	store.Subscribe(func(context.Context, Change) { order = append(order, "second") })

	if _, err := store.Dispatch(ctx, heroAction(domain.AddOne[hero]{Entity: hero{ID: 1}})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Fatalf("listener order %v", order)
	}
	if len(changes[0].Previous) != 0 || heroesOf(t, changes[0].Current).Len() != 1 {
		t.Fatalf("unexpected change %+v", changes[0])
	}

	// A no-op leaves the cache untouched and notifies nobody.
	if _, err := store.Dispatch(ctx, heroAction(domain.DeleteOne{ID: heroID(9)})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("no-op should not notify, got %v", order)
	}

	cancelFirst()
	if _, err := store.Dispatch(ctx, heroAction(domain.RemoveAll{})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if strings.Join(order, ",") != "first,second,second" {
		t.Fatalf("cancelled listener still notified: %v", order)
	}
}

func TestStoreListenerCancelsItself(t *testing.T) {
	f := newFixture(t)
	store := NewStore(f.reducer)
	ctx := context.Background()
	calls := 0
	var cancel func()
	cancel = store.Subscribe(func(context.Context, Change) {
		calls++
		cancel()
	})

	done := make(chan error, 1)
	go func() {
		_, err := store.Dispatch(ctx, heroAction(domain.AddOne[hero]{Entity: hero{ID: 1}}))
		if err == nil {
			_, err = store.Dispatch(ctx, heroAction(domain.AddOne[hero]{Entity: hero{ID: 2}}))
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on listener cancel")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snapshots := memory.NewStore()

	src := NewStore(f.reducer)
	for _, action := range []domain.Action{
		heroAction(domain.AddMany[hero]{Entities: []hero{{ID: 2, Name: "B"}, {ID: 1, Name: "A"}}}),
		domain.NewEntityAction("Villain", domain.AddOne[domain.Record]{Entity: domain.Record{"key": "DE", "name": "Dr Evil"}}),
	} {
		if _, err := src.Dispatch(ctx, action); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if err := src.SaveSnapshot(ctx, snapshots); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	dst := NewStore(f.reducer, WithInitialState(domain.EntityCache{"Hero": f.heroes.Collection(hero{ID: 42})}))
	if err := dst.Restore(ctx, snapshots, RestoreMerge); err != nil {
		t.Fatalf("Restore merge: %v", err)
	}
	if !sameIDs(heroesOf(t, dst.State()).IDs, heroID(42), heroID(2), heroID(1)) {
		t.Fatalf("merge restore ids=%v", heroesOf(t, dst.State()).IDs)
	}

	if err := dst.Restore(ctx, snapshots, RestoreReplace); err != nil {
		t.Fatalf("Restore replace: %v", err)
	}
	heroes := heroesOf(t, dst.State())
	if !sameIDs(heroes.IDs, heroID(2), heroID(1)) {
		t.Fatalf("replace restore ids=%v", heroes.IDs)
	}
	villains, ok := domain.CollectionOf[domain.Record](dst.State(), "Villain")
	if !ok {
		t.Fatalf("Villain missing after restore")
	}
	if v, _ := villains.Get(domain.StringID("DE")); v["name"] != "Dr Evil" {
		t.Fatalf("villain=%v", v)
	}
	if err := dst.Restore(ctx, snapshots, "sideways"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}

type failingSnapshots struct{ memory.Store }

func (*failingSnapshots) LoadSnapshot(context.Context) (domain.Snapshot, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreRestoreErrors(t *testing.T) {
	f := newFixture(t)
	store := NewStore(f.reducer)
	ctx := context.Background()
	if err := store.Restore(ctx, &failingSnapshots{}, RestoreReplace); err == nil || !strings.Contains(err.Error(), "load snapshot") {
		t.Fatalf("expected load error, got %v", err)
	}
	bad := memory.NewStore()
	if err := bad.SaveSnapshot(ctx, domain.Snapshot{"Sidekick": []byte(`[]`)}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := store.Restore(ctx, bad, RestoreMerge); !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Fatalf("expected unknown bucket error, got %v", err)
	}
}
