// Package minio provides a MinIO implementation of filestore.Backend.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	drv, err := minio.New(ctx, cfg, log)
//	if err != nil { ... }
//	defer drv.Close()
//
//	region := filestore.NewRegion(drv, log)
package minio

import (
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/logger"
)

// Driver is a MinIO implementation of filestore.Backend and
// filestore.BucketAdmin. It is safe for concurrent use by multiple
// goroutines.
type Driver struct {
	client   *miniogo.Client
	region   string
	pageSize int
	log      *logger.Logger
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindPermanent, "failed to create minio client", err)
	}

	d := &Driver{
		client:   client,
		region:   cfg.Region,
		pageSize: cfg.PageSizeOrDefault(),
		log:      logger.OrNop(log),
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	d.log.InfoWith("connected to minio", logger.Fields{
		"endpoint": cfg.Endpoint,
		"ssl":      cfg.UseSSL,
	})
	return d, nil
}

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op for MinIO; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// --- filestore.Backend implementation ---

// HeadObject returns the object's metadata without downloading its content.
func (d *Driver) HeadObject(ctx context.Context, bucket, key string) (filestore.Metadata, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return filestore.Metadata{}, mapError(err, "failed to stat object")
	}
	return toMetadata(stat), nil
}

// GetObject streams the object's content into w.
func (d *Driver) GetObject(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return 0, mapError(err, "failed to get object")
	}
	defer obj.Close()

	n, err := io.Copy(w, obj)
	if err != nil {
		return n, mapError(err, "failed to read object")
	}
	return n, nil
}

// PutObject uploads r. An unknown content length makes the SDK switch to a
// multipart upload.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, meta filestore.Metadata) error {
	_, err := d.client.PutObject(ctx, bucket, key, r, meta.Length(), miniogo.PutObjectOptions{
		ContentType:     meta.ContentType,
		ContentEncoding: meta.ContentEncoding,
	})
	if err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to remove object")
	}
	return nil
}

// ListPage returns up to pageSize keys after cursor. The SDK lists in the
// background until its context ends, so the listing is cancelled as soon as
// one key beyond the page has been seen.
func (d *Driver) ListPage(ctx context.Context, bucket, prefix, cursor string) (filestore.Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := d.client.ListObjects(ctx, bucket, miniogo.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: cursor,
		MaxKeys:    d.pageSize,
	})
	return collectPage(ch, d.pageSize)
}

func collectPage(ch <-chan miniogo.ObjectInfo, pageSize int) (filestore.Page, error) {
	keys := make([]string, 0, pageSize)
	for obj := range ch {
		if obj.Err != nil {
			return filestore.Page{}, mapError(obj.Err, "failed to list objects")
		}
		if len(keys) == pageSize {
			return filestore.Page{Keys: keys, Cursor: keys[len(keys)-1], Truncated: true}, nil
		}
		keys = append(keys, obj.Key)
	}
	return filestore.Page{Keys: keys}, nil
}

func (d *Driver) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, mapError(err, "failed to check bucket")
	}
	return ok, nil
}

// --- filestore.BucketAdmin implementation ---

func (d *Driver) CreateBucket(ctx context.Context, bucket string) error {
	if err := d.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: d.region}); err != nil {
		return mapError(err, "failed to create bucket")
	}
	return nil
}

// DeleteBucket removes an empty bucket.
func (d *Driver) DeleteBucket(ctx context.Context, bucket string) error {
	if err := d.client.RemoveBucket(ctx, bucket); err != nil {
		return mapError(err, "failed to remove bucket")
	}
	return nil
}

func toMetadata(stat miniogo.ObjectInfo) filestore.Metadata {
	meta := filestore.Metadata{
		ContentType: stat.ContentType,
		ETag:        stat.ETag,
	}.WithLength(stat.Size)
	if stat.Metadata != nil {
		meta.ContentEncoding = stat.Metadata.Get("Content-Encoding")
	}
	if !stat.LastModified.IsZero() {
		modified := stat.LastModified
		meta.LastModified = &modified
	}
	return meta
}
