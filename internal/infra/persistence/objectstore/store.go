// Package objectstore persists cache snapshots as objects in a blob.Store:
// one object per bucket plus a manifest naming them.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"entitycache/internal/blob"
	"entitycache/pkg/domain"
)

const (
	defaultPrefix      = "snapshots/"
	manifestName       = "manifest.json"
	bucketDir          = "buckets/"
	defaultConcurrency = 8
	manifestVersion    = 1
)

// Store implements domain.SnapshotStore over a blob.Store.
type Store struct {
	objects     blob.Store
	prefix      string
	compression Compression
	concurrency int
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix places every object under prefix. A trailing slash is added.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix == "" {
			return
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

// WithCompression selects the codec for bucket objects written by SaveSnapshot.
func WithCompression(c Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithConcurrency bounds parallel object transfers.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New wraps objects as a snapshot store.
func New(objects blob.Store, opts ...Option) (*Store, error) {
	if objects == nil {
		return nil, errors.New("objectstore: nil blob store")
	}
	s := &Store{
		objects:     objects,
		prefix:      defaultPrefix,
		compression: CompressionNone,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := ParseCompression(string(s.compression)); err != nil {
		return nil, err
	}
	return s, nil
}

// manifest lists the bucket objects of the last saved snapshot. Readers only
// trust objects named here, so a crash between bucket writes and the
// manifest write leaves the previous snapshot readable.
type manifest struct {
	Version     int               `json:"version"`
	Compression Compression       `json:"compression"`
	SavedAt     time.Time         `json:"savedAt"`
	Buckets     map[string]string `json:"buckets"`
}

func (s *Store) manifestKey() string { return s.prefix + manifestName }

func (s *Store) bucketKey(name string) string {
	return s.prefix + bucketDir + url.PathEscape(name) + s.compression.ext()
}

// SaveSnapshot writes every bucket, then the manifest, then deletes bucket
// objects the new manifest no longer names.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	m := manifest{
		Version:     manifestVersion,
		Compression: s.compression,
		SavedAt:     s.now().UTC(),
		Buckets:     make(map[string]string, len(snap)),
	}
	for name := range snap {
		m.Buckets[name] = s.bucketKey(name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for name, payload := range snap {
		key := m.Buckets[name]
		g.Go(func() error {
			body, err := compress(s.compression, payload)
			if err != nil {
				return fmt.Errorf("compress %s: %w", name, err)
			}
			_, err = s.objects.Put(gctx, key, bytes.NewReader(body), blob.PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"bucket": name, "compression": string(s.compression)},
				Overwrite:   true,
			})
			if err != nil {
				return fmt.Errorf("put bucket %s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := s.objects.Put(ctx, s.manifestKey(), bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Overwrite:   true,
	}); err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	return s.deleteStale(ctx, m)
}

func (s *Store) deleteStale(ctx context.Context, m manifest) error {
	infos, err := s.objects.List(ctx, s.prefix+bucketDir)
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	keep := make(map[string]struct{}, len(m.Buckets))
	for _, key := range m.Buckets {
		keep[key] = struct{}{}
	}
	for _, info := range infos {
		if _, ok := keep[info.Key]; ok {
			continue
		}
		if _, err := s.objects.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("delete stale %s: %w", info.Key, err)
		}
	}
	return nil
}

// LoadSnapshot reads the manifest and fetches its buckets in parallel. A
// missing manifest yields an empty snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	m, err := s.readManifest(ctx)
	if errors.Is(err, blob.ErrNotFound) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	snap := make(domain.Snapshot, len(m.Buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for name, key := range m.Buckets {
		g.Go(func() error {
			body, err := s.read(gctx, key)
			if err != nil {
				return fmt.Errorf("get bucket %s: %w", name, err)
			}
			payload, err := decompress(m.Compression, body)
			if err != nil {
				return fmt.Errorf("decompress %s: %w", name, err)
			}
			mu.Lock()
			snap[name] = json.RawMessage(payload)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) readManifest(ctx context.Context) (manifest, error) {
	raw, err := s.read(ctx, s.manifestKey())
	if err != nil {
		return manifest{}, err
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return manifest{}, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Close implements domain.SnapshotStore. The blob store is owned by the caller.
func (s *Store) Close() error { return nil }
