package filestore

import (
	"context"
	"io"
	"time"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/logger"
)

// Backend is the contract every storage driver satisfies. Drivers classify
// all native errors into errs kinds before returning them.
type Backend interface {
	// HeadObject returns the object's metadata or a NotFound error.
	HeadObject(ctx context.Context, bucket, key string) (Metadata, error)

	// GetObject copies the object's content into w and returns the byte
	// count, or fails with a NotFound error.
	GetObject(ctx context.Context, bucket, key string, w io.Writer) (int64, error)

	// PutObject stores the full content of r under key with meta.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, meta Metadata) error

	// DeleteObject removes the object at key.
	DeleteObject(ctx context.Context, bucket, key string) error

	// ListPage fetches one page of keys starting with prefix. An empty
	// cursor starts from the beginning.
	ListPage(ctx context.Context, bucket, prefix, cursor string) (Page, error)

	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// BucketAdmin is implemented by drivers that can create and drop buckets.
// It is used by test harnesses and bootstrap code, never by the facade.
type BucketAdmin interface {
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
}

// NewRegion returns the facade over backend. Every call yields a distinct
// region identity, even for the same backend.
func NewRegion(backend Backend, log *logger.Logger) Region {
	return &region{backend: backend, log: logger.OrNop(log)}
}

type region struct {
	backend Backend
	log     *logger.Logger
}

func (r *region) Bucket(name string) Bucket {
	return &bucket{region: r, name: name}
}

func (r *region) Origin() Region {
	return r
}

type bucket struct {
	region *region
	name   string
}

func (b *bucket) Region() Region { return b.region }

func (b *bucket) Name() string { return b.name }

func (b *bucket) String() string { return b.name }

func (b *bucket) Ocket(key string) Ocket {
	return &ocket{bucket: b, key: key}
}

func (b *bucket) Exists(ctx context.Context) (bool, error) {
	if err := checkName(b.name); err != nil {
		return false, err
	}
	exists, err := b.region.backend.BucketExists(ctx, b.name)
	if err != nil {
		return false, err
	}
	b.region.log.DebugWith("bucket existence checked", logger.Fields{
		"bucket": b.name,
		"exists": exists,
	})
	return exists, nil
}

func (b *bucket) Remove(ctx context.Context, key string) error {
	if err := checkPair(b.name, key); err != nil {
		return err
	}
	start := time.Now()
	if err := b.region.backend.DeleteObject(ctx, b.name, key); err != nil {
		return err
	}
	b.region.log.InfoWith("ocket removed", logger.Fields{
		"bucket":  b.name,
		"key":     key,
		"elapsed": time.Since(start).String(),
	})
	return nil
}

func (b *bucket) List(ctx context.Context, prefix string) KeyIterator {
	if err := checkName(b.name); err != nil {
		return failedIterator{err: err}
	}
	return NewKeyIterator(ctx, b.region.backend, b.name, prefix, b.region.log)
}

type ocket struct {
	bucket *bucket
	key    string
}

func (o *ocket) Bucket() Bucket { return o.bucket }

func (o *ocket) Key() string { return o.key }

func (o *ocket) String() string { return o.key }

func (o *ocket) backend() Backend { return o.bucket.region.backend }

func (o *ocket) log() *logger.Logger { return o.bucket.region.log }

func (o *ocket) Meta(ctx context.Context) (Metadata, error) {
	if err := checkPair(o.bucket.name, o.key); err != nil {
		return Metadata{}, err
	}
	start := time.Now()
	meta, err := o.backend().HeadObject(ctx, o.bucket.name, o.key)
	if err != nil {
		return Metadata{}, err
	}
	o.log().DebugWith("metadata loaded", logger.Fields{
		"bucket":  o.bucket.name,
		"key":     o.key,
		"etag":    meta.ETag,
		"elapsed": time.Since(start).String(),
	})
	return meta, nil
}

// Exists asks for the object's metadata; a NotFound answer means false.
func (o *ocket) Exists(ctx context.Context) (bool, error) {
	if err := checkPair(o.bucket.name, o.key); err != nil {
		return false, err
	}
	_, err := o.backend().HeadObject(ctx, o.bucket.name, o.key)
	switch {
	case err == nil:
		return true, nil
	case errs.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (o *ocket) Read(ctx context.Context, w io.Writer) error {
	if err := checkPair(o.bucket.name, o.key); err != nil {
		return err
	}
	start := time.Now()
	n, err := o.backend().GetObject(ctx, o.bucket.name, o.key, w)
	if err != nil {
		return err
	}
	o.log().DebugWith("ocket loaded", logger.Fields{
		"bucket":  o.bucket.name,
		"key":     o.key,
		"bytes":   n,
		"elapsed": time.Since(start).String(),
	})
	return nil
}

func (o *ocket) Write(ctx context.Context, r io.Reader, meta Metadata) error {
	if err := checkPair(o.bucket.name, o.key); err != nil {
		return err
	}
	start := time.Now()
	if err := o.backend().PutObject(ctx, o.bucket.name, o.key, r, meta); err != nil {
		return err
	}
	o.log().InfoWith("ocket saved", logger.Fields{
		"bucket":  o.bucket.name,
		"key":     o.key,
		"bytes":   meta.Length(),
		"elapsed": time.Since(start).String(),
	})
	return nil
}

func checkName(bucket string) error {
	if bucket == "" {
		return errs.New(errs.ErrKindIllegalUsage, "bucket name can't be empty")
	}
	return nil
}

func checkPair(bucket, key string) error {
	if err := checkName(bucket); err != nil {
		return err
	}
	if key == "" {
		return errs.New(errs.ErrKindIllegalUsage, "ocket key can't be empty")
	}
	return nil
}
