package fs

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"entitycache/internal/blob/core"
)

func TestPutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Put(ctx, "snapshots/Hero.json", strings.NewReader(`{"a":1}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"entity": "Hero"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "snapshots/Hero.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "snapshots/Hero.json", strings.NewReader(`{"a":2}`), core.PutOptions{Overwrite: true, ContentType: "application/json"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	info, rc, err := s.Get(ctx, "snapshots/Hero.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"a":2}` || info.Size != int64(len(body)) || info.ContentType != "application/json" {
		t.Fatalf("unexpected object %q %+v", body, info)
	}
}

func TestListSkipsSidecarsAndFiltersPrefix(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, k := range []string{"a/Hero", "a/Villain", "b/Hero"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	infos, err := s.List(ctx, "a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "a/Hero" || infos[1].Key != "a/Villain" {
		t.Fatalf("unexpected list %+v", infos)
	}
	if ok, err := s.Delete(ctx, "a/Hero"); err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "a/Hero"); ok {
		t.Fatalf("expected missing key on second delete")
	}
	if _, err := s.Head(ctx, "a/Hero"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSanitizeKeyRejectsUnsafeKeys(t *testing.T) {
	for _, key := range []string{"", " ", "/abs", "../up", "a/../../b", "x.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if got, err := sanitizeKey("a//b/./c"); err != nil || got != "a/b/c" {
		t.Fatalf("expected cleaned key, got %q %v", got, err)
	}
}
