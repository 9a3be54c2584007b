package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"entitycache/internal/blob/core"
)

func TestPutIsCreateOnlyUnlessOverwrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Put(ctx, "snap/Hero.json", strings.NewReader("v1"), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "snap/Hero.json", strings.NewReader("v2"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info, err := s.Put(ctx, "snap/Hero.json", strings.NewReader("v2"), core.PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 2 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := s.Get(ctx, "snap/Hero.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	b, _ := io.ReadAll(rc)
	if !bytes.Equal(b, []byte("v2")) {
		t.Fatalf("expected overwritten content, got %q", b)
	}
}

func TestListDeleteAndMissingKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"b/2", "a/1", "b/1"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{Metadata: map[string]string{"k": k}}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	infos, err := s.List(ctx, "b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "b/1" || infos[1].Key != "b/2" {
		t.Fatalf("unexpected list %+v", infos)
	}
	infos[0].Metadata["k"] = "mutated"
	if head, _ := s.Head(ctx, "b/1"); head.Metadata["k"] != "b/1" {
		t.Fatalf("metadata leaked through List copy: %v", head.Metadata)
	}
	if ok, _ := s.Delete(ctx, "b/1"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := s.Delete(ctx, "b/1"); ok {
		t.Fatalf("expected second delete to report missing key")
	}
	if _, err := s.Head(ctx, "b/1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
}
