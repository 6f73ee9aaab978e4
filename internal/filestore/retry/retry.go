// Package retry decorates the filestore facade so that every backend call
// is re-attempted on transient failures.
//
// Each decorator holds one inner value and a shared Config. Handles derived
// from a decorated value (Bucket, Ocket, Region, iterators) are decorated
// too, so a caller never escapes the policy by navigating the facade. The
// error returned after the last attempt keeps its original kind.
package retry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/ocket/internal/backoff"
	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/logger"
)

// Config controls how calls are retried.
type Config struct {
	Backoff backoff.Config

	// Retryable decides whether an error deserves another attempt.
	// Defaults to errs.IsTransient.
	Retryable backoff.Classifier

	// Logger receives a warning per re-attempt. When nil, the logger
	// stored in the call's context is used.
	Logger *logger.Logger

	// Retries, when set, is incremented with label "op" for every
	// re-attempt. See NewMetrics.
	Retries *prometheus.CounterVec
}

// DefaultConfig retries transient errors three times in total.
func DefaultConfig() Config {
	return Config{Backoff: backoff.DefaultConfig(), Retryable: errs.IsTransient}
}

// NewMetrics registers the retry counter with reg. A counter already
// registered on reg is reused.
func NewMetrics(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocket",
		Subsystem: "retry",
		Name:      "retries_total",
		Help:      "Total number of re-attempted storage calls",
	}, []string{"op"})
	if err := reg.Register(retries); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return retries, nil
}

type policy struct {
	cfg Config
}

func newPolicy(cfg Config) *policy {
	if cfg.Retryable == nil {
		cfg.Retryable = errs.IsTransient
	}
	return &policy{cfg: cfg}
}

// logFor returns the configured logger, else the one carried by ctx.
func (p *policy) logFor(ctx context.Context) *logger.Logger {
	if p.cfg.Logger != nil {
		return p.cfg.Logger
	}
	return logger.FromContext(ctx)
}

func (p *policy) hook(ctx context.Context, op, target string) backoff.Hook {
	log := p.logFor(ctx)
	return func(attempt int, err error, delay time.Duration) {
		log.WarnWith("retrying storage call", err, logger.Fields{
			"op":      op,
			"target":  target,
			"attempt": attempt,
			"delay":   delay.String(),
		})
		if p.cfg.Retries != nil {
			p.cfg.Retries.WithLabelValues(op).Inc()
		}
	}
}

func (p *policy) do(ctx context.Context, op, target string, fn func() error) error {
	return backoff.Do(ctx, p.cfg.Backoff, p.cfg.Retryable, p.hook(ctx, op, target), fn)
}

// NewRegion decorates inner with retries.
func NewRegion(inner filestore.Region, cfg Config) filestore.Region {
	return &region{inner: inner, p: newPolicy(cfg)}
}

// NewBucket decorates inner with retries.
func NewBucket(inner filestore.Bucket, cfg Config) filestore.Bucket {
	return &bucket{inner: inner, p: newPolicy(cfg)}
}

// NewOcket decorates inner with retries.
func NewOcket(inner filestore.Ocket, cfg Config) filestore.Ocket {
	return &ocket{inner: inner, p: newPolicy(cfg)}
}

type region struct {
	inner filestore.Region
	p     *policy
}

func (r *region) Bucket(name string) filestore.Bucket {
	return &bucket{inner: r.inner.Bucket(name), p: r.p}
}

func (r *region) Origin() filestore.Region { return r.inner.Origin() }

type bucket struct {
	inner filestore.Bucket
	p     *policy
}

func (b *bucket) Region() filestore.Region {
	return &region{inner: b.inner.Region(), p: b.p}
}

func (b *bucket) Name() string { return b.inner.Name() }

func (b *bucket) String() string { return b.inner.Name() }

func (b *bucket) Ocket(key string) filestore.Ocket {
	return &ocket{inner: b.inner.Ocket(key), p: b.p}
}

func (b *bucket) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := b.p.do(ctx, "bucket_exists", b.inner.Name(), func() error {
		var err error
		exists, err = b.inner.Exists(ctx)
		return err
	})
	return exists, err
}

func (b *bucket) Remove(ctx context.Context, key string) error {
	return b.p.do(ctx, "remove", b.inner.Name()+"/"+key, func() error {
		return b.inner.Remove(ctx, key)
	})
}

func (b *bucket) List(ctx context.Context, prefix string) filestore.KeyIterator {
	return &keyIterator{
		ctx:    ctx,
		inner:  b.inner.List(ctx, prefix),
		target: b.inner.Name() + "/" + prefix,
		p:      b.p,
	}
}

type ocket struct {
	inner filestore.Ocket
	p     *policy
}

func (o *ocket) Bucket() filestore.Bucket {
	inner := o.inner.Bucket()
	if inner == nil {
		return nil
	}
	return &bucket{inner: inner, p: o.p}
}

func (o *ocket) Key() string { return o.inner.Key() }

func (o *ocket) String() string { return o.inner.Key() }

func (o *ocket) target() string {
	if b := o.inner.Bucket(); b != nil {
		return b.Name() + "/" + o.inner.Key()
	}
	return o.inner.Key()
}

func (o *ocket) Meta(ctx context.Context) (filestore.Metadata, error) {
	return backoff.DoWithResult(ctx, o.p.cfg.Backoff, o.p.cfg.Retryable, o.p.hook(ctx, "meta", o.target()),
		func() (filestore.Metadata, error) { return o.inner.Meta(ctx) })
}

func (o *ocket) Exists(ctx context.Context) (bool, error) {
	return backoff.DoWithResult(ctx, o.p.cfg.Backoff, o.p.cfg.Retryable, o.p.hook(ctx, "exists", o.target()),
		func() (bool, error) { return o.inner.Exists(ctx) })
}

// Read buffers each attempt so that a failed attempt never leaves partial
// content in w.
func (o *ocket) Read(ctx context.Context, w io.Writer) error {
	var buf bytes.Buffer
	err := o.p.do(ctx, "read", o.target(), func() error {
		buf.Reset()
		return o.inner.Read(ctx, &buf)
	})
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to copy content of "+o.target(), err)
	}
	return nil
}

// Write rewinds r before every attempt. Readers that cannot seek are
// buffered in memory first.
func (o *ocket) Write(ctx context.Context, r io.Reader, meta filestore.Metadata) error {
	body, err := rewindable(r)
	if err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to buffer content for "+o.target(), err)
	}
	start, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to locate content for "+o.target(), err)
	}
	return o.p.do(ctx, "write", o.target(), func() error {
		if _, err := body.Seek(start, io.SeekStart); err != nil {
			return errs.Wrap(errs.ErrKindPermanent, "failed to rewind content for "+o.target(), err)
		}
		return o.inner.Write(ctx, body, meta)
	})
}

func rewindable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// keyIterator retries each HasNext and Next call. The wrapped iterator
// leaves its state untouched when a page fetch fails, so calling it again
// re-issues the same fetch.
type keyIterator struct {
	ctx    context.Context
	inner  filestore.KeyIterator
	target string
	p      *policy
}

func (it *keyIterator) HasNext() (bool, error) {
	var ok bool
	err := it.p.do(it.ctx, "list", it.target, func() error {
		var err error
		ok, err = it.inner.HasNext()
		return err
	})
	return ok, err
}

func (it *keyIterator) Next() (string, error) {
	var key string
	err := it.p.do(it.ctx, "list", it.target, func() error {
		var err error
		key, err = it.inner.Next()
		return err
	})
	return key, err
}

func (it *keyIterator) Remove() error { return it.inner.Remove() }
