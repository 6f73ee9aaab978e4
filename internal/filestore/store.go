// Package filestore defines the provider-neutral facade over object storage.
//
// Three small interfaces make up the facade: a Region (connection scope) hands
// out Buckets, a Bucket hands out Ockets (addressable objects) and key
// listings. Backend drivers (MinIO, S3, SQL, local filesystem) only implement
// the Backend contract; NewRegion turns any Backend into the facade.
// Decorators (retry, cached, Prefixed) implement the same interfaces and hold
// exactly one inner value, so they stack in any order and depth.
//
// Usage:
//
//	drv, err := minio.New(ctx, cfg, log)
//	if err != nil { ... }
//	region := filestore.NewRegion(drv, log)
//
//	ocket := region.Bucket("photos").Ocket("2024/cat.jpg")
//	if err := ocket.Read(ctx, w); errs.IsNotFound(err) { ... }
//
// Obtaining a Region, Bucket or Ocket has no side effects; all I/O happens in
// the operations that take a context.
package filestore

import (
	"context"
	"io"
)

// Region is an access point bound to one backend instance.
type Region interface {
	// Bucket returns a handle to the named bucket. It performs no I/O.
	Bucket(name string) Bucket

	// Origin returns the innermost, undecorated Region. Two regions share a
	// backend exactly when their origins are equal.
	Origin() Region
}

// Bucket is a named set of Ockets within a Region.
type Bucket interface {
	// Region returns the region the bucket belongs to.
	Region() Region

	// Name returns the bucket name.
	Name() string

	// Ocket returns a handle to the object at key. It performs no I/O.
	Ocket(key string) Ocket

	// Exists reports whether the bucket itself exists in the backend.
	Exists(ctx context.Context) (bool, error)

	// Remove deletes the object at key.
	Remove(ctx context.Context, key string) error

	// List returns a lazy iterator over every key starting with prefix.
	// It never fails eagerly: errors surface when the iterator is pulled.
	List(ctx context.Context, prefix string) KeyIterator
}

// Ocket is an object addressed by (bucket, key). It holds no content; every
// operation goes to the backend.
type Ocket interface {
	// Bucket returns the bucket the ocket belongs to.
	Bucket() Bucket

	// Key returns the object key.
	Key() string

	// Meta fetches the object's metadata. Fails with a NotFound error when
	// the object does not exist.
	Meta(ctx context.Context) (Metadata, error)

	// Exists reports whether an object with exactly this key exists.
	Exists(ctx context.Context) (bool, error)

	// Read copies the full content into w. Fails with a NotFound error when
	// the object does not exist.
	Read(ctx context.Context, w io.Writer) error

	// Write replaces the object with the content of r and the given metadata.
	Write(ctx context.Context, r io.Reader, meta Metadata) error
}

// KeyIterator is a lazy, finite, forward-only sequence of keys produced by
// Bucket.List. It is not safe for concurrent use and cannot be restarted;
// call List again to re-enumerate.
type KeyIterator interface {
	// HasNext reports whether Next would return a key, fetching pages from
	// the backend as needed.
	HasNext() (bool, error)

	// Next returns the next key. Fails with an IllegalUsage error once the
	// sequence is exhausted.
	Next() (string, error)

	// Remove is not supported and always fails with an IllegalUsage error.
	Remove() error
}
