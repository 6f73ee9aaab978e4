// Package cached decorates the filestore facade with a read-through cache
// for object metadata, existence and content.
//
// The store belongs to the decorator built by NewRegion, NewBucket or
// NewOcket and is shared with every handle derived from it. Entries are
// keyed by bucket name and object key and live until a Write or Remove on
// the same pair goes through the decorator. Changes made by other writers
// are not observed. Failed calls are never cached.
package cached

import (
	"bytes"
	"context"
	"io"

	"github.com/koustreak/ocket/internal/cache"
	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
)

type kind string

const (
	kindMeta    kind = "meta"
	kindExists  kind = "exists"
	kindContent kind = "content"
)

type entry struct {
	meta    filestore.Metadata
	exists  bool
	content []byte
}

type store struct {
	entries *cache.Cache[entry]
}

func newStore(opts []cache.Option) (*store, error) {
	entries, err := cache.New[entry](opts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindPermanent, "failed to create ocket cache", err)
	}
	return &store{entries: entries}, nil
}

func cacheKey(k kind, bucket, key string) string {
	return string(k) + "|" + bucket + "|" + key
}

func (s *store) get(k kind, bucket, key string) (entry, bool) {
	return s.entries.Get(cacheKey(k, bucket, key))
}

func (s *store) set(k kind, bucket, key string, e entry) {
	s.entries.Set(cacheKey(k, bucket, key), e)
}

func (s *store) flush(bucket, key string) {
	s.entries.Delete(
		cacheKey(kindMeta, bucket, key),
		cacheKey(kindExists, bucket, key),
		cacheKey(kindContent, bucket, key),
	)
}

// NewRegion wraps inner with a fresh cache. It fails only when metric
// registration requested through opts fails.
func NewRegion(inner filestore.Region, opts ...cache.Option) (filestore.Region, error) {
	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}
	return &region{inner: inner, store: s}, nil
}

// NewBucket wraps inner with a fresh cache.
func NewBucket(inner filestore.Bucket, opts ...cache.Option) (filestore.Bucket, error) {
	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}
	return &bucket{inner: inner, store: s}, nil
}

// NewOcket wraps inner with a fresh cache.
func NewOcket(inner filestore.Ocket, opts ...cache.Option) (filestore.Ocket, error) {
	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}
	return &ocket{inner: inner, store: s}, nil
}

type region struct {
	inner filestore.Region
	store *store
}

func (r *region) Bucket(name string) filestore.Bucket {
	return &bucket{inner: r.inner.Bucket(name), store: r.store}
}

func (r *region) Origin() filestore.Region { return r.inner.Origin() }

type bucket struct {
	inner filestore.Bucket
	store *store
}

func (b *bucket) Region() filestore.Region {
	return &region{inner: b.inner.Region(), store: b.store}
}

func (b *bucket) Name() string { return b.inner.Name() }

func (b *bucket) String() string { return b.inner.Name() }

func (b *bucket) Ocket(key string) filestore.Ocket {
	return &ocket{inner: b.inner.Ocket(key), store: b.store}
}

func (b *bucket) Exists(ctx context.Context) (bool, error) {
	return b.inner.Exists(ctx)
}

// Remove flushes the pair the inner stack resolves key to, which differs
// from (Name(), key) when an inner layer rewrites keys.
func (b *bucket) Remove(ctx context.Context, key string) error {
	o := &ocket{inner: b.inner.Ocket(key), store: b.store}
	o.store.flush(o.bucketName(), o.Key())
	err := b.inner.Remove(ctx, key)
	o.store.flush(o.bucketName(), o.Key())
	return err
}

func (b *bucket) List(ctx context.Context, prefix string) filestore.KeyIterator {
	return b.inner.List(ctx, prefix)
}

type ocket struct {
	inner filestore.Ocket
	store *store
}

func (o *ocket) Bucket() filestore.Bucket {
	inner := o.inner.Bucket()
	if inner == nil {
		return nil
	}
	return &bucket{inner: inner, store: o.store}
}

func (o *ocket) Key() string { return o.inner.Key() }

func (o *ocket) String() string { return o.inner.Key() }

func (o *ocket) bucketName() string {
	if b := o.inner.Bucket(); b != nil {
		return b.Name()
	}
	return ""
}

func (o *ocket) Meta(ctx context.Context) (filestore.Metadata, error) {
	if e, ok := o.store.get(kindMeta, o.bucketName(), o.Key()); ok {
		return e.meta, nil
	}
	meta, err := o.inner.Meta(ctx)
	if err != nil {
		return filestore.Metadata{}, err
	}
	o.store.set(kindMeta, o.bucketName(), o.Key(), entry{meta: meta})
	return meta, nil
}

func (o *ocket) Exists(ctx context.Context) (bool, error) {
	if e, ok := o.store.get(kindExists, o.bucketName(), o.Key()); ok {
		return e.exists, nil
	}
	exists, err := o.inner.Exists(ctx)
	if err != nil {
		return false, err
	}
	o.store.set(kindExists, o.bucketName(), o.Key(), entry{exists: exists})
	return exists, nil
}

// Read serves the full content from the cache, loading it on a miss.
func (o *ocket) Read(ctx context.Context, w io.Writer) error {
	e, ok := o.store.get(kindContent, o.bucketName(), o.Key())
	if !ok {
		var buf bytes.Buffer
		if err := o.inner.Read(ctx, &buf); err != nil {
			return err
		}
		e = entry{content: buf.Bytes()}
		o.store.set(kindContent, o.bucketName(), o.Key(), e)
	}
	if _, err := w.Write(e.content); err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to copy cached content of "+o.Key(), err)
	}
	return nil
}

// Write always goes to the inner ocket. Entries for the key are dropped
// before and after, whether or not the write succeeds.
func (o *ocket) Write(ctx context.Context, r io.Reader, meta filestore.Metadata) error {
	o.store.flush(o.bucketName(), o.Key())
	err := o.inner.Write(ctx, r, meta)
	o.store.flush(o.bucketName(), o.Key())
	return err
}
