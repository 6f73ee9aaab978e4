// Package filestoretest provides an in-memory filestore.Backend with failure
// injection and scripted listing pages, plus helpers for throwaway buckets.
package filestoretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
)

// Op names a Backend operation for failure injection and call counting.
type Op string

const (
	OpHead   Op = "head"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpDelete Op = "delete"
	OpList   Op = "list"
	OpExists Op = "exists"
)

type object struct {
	data []byte
	meta filestore.Metadata
}

// Backend is an in-memory filestore.Backend and filestore.BucketAdmin.
// It is safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	pageSize int
	version  int
	buckets  map[string]map[string]object
	failures map[Op][]error
	calls    map[Op]int
	script   []filestore.Page
	cursors  []string
}

// NewBackend returns a Backend listing at most pageSize keys per page, with
// the given buckets already created.
func NewBackend(pageSize int, buckets ...string) *Backend {
	if pageSize <= 0 {
		pageSize = filestore.DefaultPageSize
	}
	b := &Backend{
		pageSize: pageSize,
		buckets:  make(map[string]map[string]object),
		failures: make(map[Op][]error),
		calls:    make(map[Op]int),
	}
	for _, name := range buckets {
		b.buckets[name] = make(map[string]object)
	}
	return b
}

// FailNext queues errors returned, in order, by the next calls of op.
func (b *Backend) FailNext(op Op, errors ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], errors...)
}

// Calls returns how many times op was invoked, failed calls included.
func (b *Backend) Calls(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Script makes ListPage return pages in order, regardless of stored objects.
// Once the script runs out, ListPage returns an empty final page.
func (b *Backend) Script(pages ...filestore.Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append(b.script, pages...)
}

// Cursors returns the cursor argument of every ListPage call so far.
func (b *Backend) Cursors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cursors...)
}

// enter records a call and pops the next injected failure. Callers hold mu.
func (b *Backend) enter(op Op) error {
	b.calls[op]++
	queue := b.failures[op]
	if len(queue) == 0 {
		return nil
	}
	b.failures[op] = queue[1:]
	return queue[0]
}

func (b *Backend) lookup(bucket, key string) (object, error) {
	objects, ok := b.buckets[bucket]
	if !ok {
		return object{}, errs.Newf(errs.ErrKindNotFound, "bucket '%s' not found", bucket)
	}
	obj, ok := objects[key]
	if !ok {
		return object{}, errs.Newf(errs.ErrKindNotFound, "ocket '%s' not found in '%s'", key, bucket)
	}
	return obj, nil
}

func (b *Backend) HeadObject(_ context.Context, bucket, key string) (filestore.Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpHead); err != nil {
		return filestore.Metadata{}, err
	}
	obj, err := b.lookup(bucket, key)
	if err != nil {
		return filestore.Metadata{}, err
	}
	return obj.meta, nil
}

func (b *Backend) GetObject(_ context.Context, bucket, key string, w io.Writer) (int64, error) {
	b.mu.Lock()
	if err := b.enter(OpGet); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	obj, err := b.lookup(bucket, key)
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return io.Copy(w, bytes.NewReader(obj.data))
}

func (b *Backend) PutObject(_ context.Context, bucket, key string, r io.Reader, meta filestore.Metadata) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to read content", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpPut); err != nil {
		return err
	}
	objects, ok := b.buckets[bucket]
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "bucket '%s' not found", bucket)
	}
	b.version++
	now := time.Now().UTC()
	meta = meta.WithLength(int64(len(data)))
	meta.LastModified = &now
	meta.ETag = fmt.Sprintf("v%d", b.version)
	objects[key] = object{data: data, meta: meta}
	return nil
}

func (b *Backend) DeleteObject(_ context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDelete); err != nil {
		return err
	}
	objects, ok := b.buckets[bucket]
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "bucket '%s' not found", bucket)
	}
	delete(objects, key)
	return nil
}

// ListPage pages through the sorted keys with a start-after cursor, unless
// a script was installed.
func (b *Backend) ListPage(_ context.Context, bucket, prefix, cursor string) (filestore.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursors = append(b.cursors, cursor)
	if err := b.enter(OpList); err != nil {
		return filestore.Page{}, err
	}

	if b.script != nil {
		if len(b.script) == 0 {
			return filestore.Page{}, nil
		}
		page := b.script[0]
		b.script = b.script[1:]
		return page, nil
	}

	objects, ok := b.buckets[bucket]
	if !ok {
		return filestore.Page{}, errs.Newf(errs.ErrKindNotFound, "bucket '%s' not found", bucket)
	}
	keys := make([]string, 0, len(objects))
	for key := range objects {
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if len(keys) <= b.pageSize {
		return filestore.Page{Keys: keys}, nil
	}
	keys = keys[:b.pageSize]
	return filestore.Page{Keys: keys, Cursor: keys[len(keys)-1], Truncated: true}, nil
}

func (b *Backend) BucketExists(_ context.Context, bucket string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpExists); err != nil {
		return false, err
	}
	_, ok := b.buckets[bucket]
	return ok, nil
}

func (b *Backend) CreateBucket(_ context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[bucket]; !ok {
		b.buckets[bucket] = make(map[string]object)
	}
	return nil
}

func (b *Backend) DeleteBucket(_ context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buckets, bucket)
	return nil
}
