package filestore

import (
	"context"

	"github.com/koustreak/ocket/internal/errs"
)

// Prefixed scopes bucket to the keys starting with prefix. Keys passed in are
// extended with prefix; listed keys come back with prefix stripped, and a
// key equal to prefix itself (a "directory marker") is never returned.
func Prefixed(bucket Bucket, prefix string) Bucket {
	return &prefixedBucket{origin: bucket, prefix: prefix}
}

type prefixedBucket struct {
	origin Bucket
	prefix string
}

func (p *prefixedBucket) Region() Region { return p.origin.Region() }

func (p *prefixedBucket) Name() string { return p.origin.Name() }

func (p *prefixedBucket) String() string { return p.origin.Name() + "/" + p.prefix }

// Ocket with an empty key is left empty so that its operations fail with
// IllegalUsage instead of addressing the directory marker.
func (p *prefixedBucket) Ocket(key string) Ocket {
	if key == "" {
		return p.origin.Ocket("")
	}
	return p.origin.Ocket(p.prefix + key)
}

func (p *prefixedBucket) Exists(ctx context.Context) (bool, error) {
	return p.origin.Exists(ctx)
}

func (p *prefixedBucket) Remove(ctx context.Context, key string) error {
	if key == "" {
		return errs.Newf(errs.ErrKindIllegalUsage, "empty key in '%s'", p)
	}
	return p.origin.Remove(ctx, p.prefix+key)
}

func (p *prefixedBucket) List(ctx context.Context, prefix string) KeyIterator {
	return &strippingIterator{
		inner: p.origin.List(ctx, p.prefix+prefix),
		cut:   len(p.prefix),
	}
}

// strippingIterator removes the first cut bytes of every key and skips keys
// that end up empty. It buffers one key of lookahead for that.
type strippingIterator struct {
	inner   KeyIterator
	cut     int
	pending string
	ready   bool
}

func (s *strippingIterator) HasNext() (bool, error) {
	for !s.ready {
		ok, err := s.inner.HasNext()
		if err != nil || !ok {
			return false, err
		}
		key, err := s.inner.Next()
		if err != nil {
			return false, err
		}
		if len(key) >= s.cut {
			key = key[s.cut:]
		}
		if key == "" {
			continue
		}
		s.pending, s.ready = key, true
	}
	return true, nil
}

func (s *strippingIterator) Next() (string, error) {
	ok, err := s.HasNext()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.ErrKindIllegalUsage, "there are no more elements in this iterator")
	}
	key := s.pending
	s.pending, s.ready = "", false
	return key, nil
}

func (s *strippingIterator) Remove() error {
	return s.inner.Remove()
}
