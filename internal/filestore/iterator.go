package filestore

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/logger"
)

// PageLister is the part of Backend the key iterator needs.
type PageLister interface {
	ListPage(ctx context.Context, bucket, prefix, cursor string) (Page, error)
}

// keyIterator walks the pages of one List call. It moves from "needs fetch"
// to "has buffered keys" and back until a page reports it is the last one;
// after that it is exhausted for good.
type keyIterator struct {
	ctx    context.Context
	lister PageLister
	bucket string
	prefix string
	log    *logger.Logger

	buffer    []string
	cursor    string
	exhausted bool
}

// NewKeyIterator returns a lazy iterator over the keys under prefix in
// bucket. No page is fetched until HasNext or Next is called.
func NewKeyIterator(ctx context.Context, lister PageLister, bucket, prefix string, log *logger.Logger) KeyIterator {
	return &keyIterator{
		ctx:    ctx,
		lister: lister,
		bucket: bucket,
		prefix: prefix,
		log:    logger.OrNop(log),
	}
}

// HasNext fetches pages until a key is buffered or the listing ends. A page
// may be empty yet truncated, so one empty page does not end the stream.
func (it *keyIterator) HasNext() (bool, error) {
	for len(it.buffer) == 0 && !it.exhausted {
		if err := it.fetch(); err != nil {
			return false, err
		}
	}
	return len(it.buffer) > 0, nil
}

func (it *keyIterator) Next() (string, error) {
	ok, err := it.HasNext()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.ErrKindIllegalUsage, "there are no more elements in this iterator")
	}
	key := it.buffer[0]
	it.buffer = it.buffer[1:]
	return key, nil
}

func (it *keyIterator) Remove() error {
	return errs.New(errs.ErrKindIllegalUsage, "remove is not supported")
}

// fetch loads one page. State is only touched after a successful fetch, so a
// failed call can be repeated verbatim.
func (it *keyIterator) fetch() error {
	start := time.Now()
	page, err := it.lister.ListPage(it.ctx, it.bucket, it.prefix, it.cursor)
	if err != nil {
		return errs.Wrap(
			errs.ErrKindState,
			fmt.Sprintf("failed to load a list of objects in '%s', prefix=%s", it.bucket, it.prefix),
			err,
		)
	}
	if page.Truncated && len(page.Keys) == 0 && page.Cursor != "" && page.Cursor == it.cursor {
		return errs.New(
			errs.ErrKindState,
			fmt.Sprintf("listing of '%s' did not advance past cursor %q", it.bucket, it.cursor),
		)
	}

	it.buffer = append(it.buffer, page.Keys...)
	it.cursor = page.Cursor
	if !page.Truncated || page.Cursor == "" {
		it.exhausted = true
	}

	it.log.DebugWith("listed ockets", logger.Fields{
		"bucket":    it.bucket,
		"prefix":    it.prefix,
		"count":     len(page.Keys),
		"truncated": page.Truncated,
		"elapsed":   time.Since(start).String(),
	})
	return nil
}

// failedIterator reports err on first use. It lets List stay infallible.
type failedIterator struct {
	err error
}

func (f failedIterator) HasNext() (bool, error) { return false, f.err }

func (f failedIterator) Next() (string, error) { return "", f.err }

func (f failedIterator) Remove() error {
	return errs.New(errs.ErrKindIllegalUsage, "remove is not supported")
}

// All adapts it to a range-over-func sequence. Iteration stops after the
// first error, which is yielded with an empty key.
func All(it KeyIterator) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			ok, err := it.HasNext()
			if err != nil {
				yield("", err)
				return
			}
			if !ok {
				return
			}
			key, err := it.Next()
			if !yield(key, err) || err != nil {
				return
			}
		}
	}
}

// Collect drains it into a slice.
func Collect(it KeyIterator) ([]string, error) {
	keys := make([]string, 0)
	for key, err := range All(it) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
