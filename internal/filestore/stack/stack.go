// Package stack assembles a decorated Region from configuration.
//
// The default order, outermost first, is:
//
//	Prefixed (Bucket only) -> cached -> retry -> driver
//
// Retry sits closest to the driver so that every cache miss is retried and
// cached values never pass through the retry loop.
package stack

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/ocket/internal/cache"
	"github.com/koustreak/ocket/internal/config"
	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/filestore/cached"
	"github.com/koustreak/ocket/internal/filestore/local"
	"github.com/koustreak/ocket/internal/filestore/minio"
	"github.com/koustreak/ocket/internal/filestore/retry"
	"github.com/koustreak/ocket/internal/filestore/s3"
	"github.com/koustreak/ocket/internal/filestore/sqlstore"
	"github.com/koustreak/ocket/internal/logger"
)

// Driver is what every provider returns: a backend that can also manage
// buckets and be closed.
type Driver interface {
	filestore.Backend
	filestore.BucketAdmin
	io.Closer
}

type options struct {
	registerer prometheus.Registerer
}

// Option configures Open.
type Option func(*options)

// WithMetrics registers retry and cache metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// OpenDriver connects to the provider named by cfg.Provider.
func OpenDriver(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (Driver, error) {
	var (
		drv Driver
		err error
	)
	switch cfg.Provider {
	case filestore.ProviderLocal:
		drv, err = asDriver(local.New(cfg, log))
	case filestore.ProviderMinIO:
		drv, err = asDriver(minio.New(ctx, cfg, log))
	case filestore.ProviderS3:
		drv, err = asDriver(s3.New(ctx, cfg, log))
	case filestore.ProviderPostgres, filestore.ProviderMySQL:
		drv, err = asDriver(sqlstore.New(ctx, cfg, log))
	case filestore.ProviderNoop:
		drv = noopDriver{}
	default:
		err = errs.Newf(errs.ErrKindIllegalUsage, "unknown storage provider %q", cfg.Provider)
	}
	return drv, err
}

// asDriver keeps a nil concrete driver from becoming a non-nil interface.
func asDriver[D Driver](d D, err error) (Driver, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open builds the configured driver and wraps its Region with retry and
// cache decorators as enabled in cfg. A nil log falls back to the logger
// carried by ctx. The returned Driver must be closed by
// the caller; it is also the way to reach BucketAdmin.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (filestore.Region, Driver, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log = log.With(logger.Fields{"provider": string(cfg.Storage.Provider)})

	drv, err := OpenDriver(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, nil, err
	}

	region, err := decorate(filestore.NewRegion(drv, log), cfg, log, o)
	if err != nil {
		if cerr := drv.Close(); cerr != nil {
			log.ErrorWith("failed to close driver", cerr, nil)
		}
		return nil, nil, err
	}

	log.InfoWith("storage stack ready", logger.Fields{
		"retry": cfg.Retry.Enabled,
		"cache": cfg.Cache.Enabled,
	})
	return region, drv, nil
}

func decorate(region filestore.Region, cfg *config.Config, log *logger.Logger, o *options) (filestore.Region, error) {
	if cfg.Retry.Enabled {
		rc := retry.Config{
			Backoff:   cfg.Retry.Config,
			Retryable: errs.IsTransient,
			Logger:    log,
		}
		if o.registerer != nil {
			retries, err := retry.NewMetrics(o.registerer)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindPermanent, "failed to register retry metrics", err)
			}
			rc.Retries = retries
		}
		region = retry.NewRegion(region, rc)
	}

	if cfg.Cache.Enabled {
		var cacheOpts []cache.Option
		if o.registerer != nil {
			cacheOpts = append(cacheOpts, cache.WithMetrics(o.registerer, cfg.Cache.Component))
		}
		var err error
		region, err = cached.NewRegion(region, cacheOpts...)
		if err != nil {
			return nil, err
		}
	}
	return region, nil
}

// Bucket returns the configured default bucket of region, scoped to the
// configured prefix when one is set.
func Bucket(region filestore.Region, cfg *config.Config) filestore.Bucket {
	bucket := region.Bucket(cfg.Storage.Bucket)
	if cfg.Storage.Prefix != "" {
		return filestore.Prefixed(bucket, cfg.Storage.Prefix)
	}
	return bucket
}
