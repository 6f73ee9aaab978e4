package stack

import (
	"context"
	"io"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
)

// noopDriver accepts every write and stores nothing. Every bucket exists
// and is empty.
type noopDriver struct{}

func (noopDriver) HeadObject(_ context.Context, bucket, key string) (filestore.Metadata, error) {
	return filestore.Metadata{}, errs.Newf(errs.ErrKindNotFound, "ocket '%s' not found in '%s'", key, bucket)
}

func (noopDriver) GetObject(_ context.Context, bucket, key string, _ io.Writer) (int64, error) {
	return 0, errs.Newf(errs.ErrKindNotFound, "ocket '%s' not found in '%s'", key, bucket)
}

func (noopDriver) PutObject(_ context.Context, _, _ string, r io.Reader, _ filestore.Metadata) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to drain content", err)
	}
	return nil
}

func (noopDriver) DeleteObject(context.Context, string, string) error { return nil }

func (noopDriver) ListPage(context.Context, string, string, string) (filestore.Page, error) {
	return filestore.Page{}, nil
}

func (noopDriver) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (noopDriver) CreateBucket(context.Context, string) error { return nil }

func (noopDriver) DeleteBucket(context.Context, string) error { return nil }

func (noopDriver) Close() error { return nil }
