package filestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/filestore/filestoretest"
)

func memoryBucket(t *testing.T, pageSize int) (*filestoretest.Backend, filestore.Bucket) {
	t.Helper()
	backend := filestoretest.NewBackend(pageSize)
	region := filestore.NewRegion(backend, nil)
	return backend, filestoretest.RandomBucket(t, region, backend)
}

func put(t *testing.T, bucket filestore.Bucket, key, content string) {
	t.Helper()
	require.NoError(t, filestore.NewText(bucket.Ocket(key)).WriteString(context.Background(), content))
}

func TestPrefixed_ListStripsPrefixAndDropsMarker(t *testing.T) {
	_, bucket := memoryBucket(t, 1)
	put(t, bucket, "a/", "")
	put(t, bucket, "a/b/c.txt", "c")
	put(t, bucket, "a/d.txt", "d")
	put(t, bucket, "other.txt", "o")

	keys, err := filestore.Collect(filestore.Prefixed(bucket, "a/").List(context.Background(), ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"b/c.txt", "d.txt"}, keys)
	assert.NotContains(t, keys, "")
}

func TestPrefixed_ListNarrowsByInnerPrefix(t *testing.T) {
	_, bucket := memoryBucket(t, 0)
	put(t, bucket, "a/b/c.txt", "c")
	put(t, bucket, "a/d.txt", "d")

	keys, err := filestore.Collect(filestore.Prefixed(bucket, "a/").List(context.Background(), "b/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b/c.txt"}, keys)
}

func TestPrefixed_PassesShortKeysThrough(t *testing.T) {
	backend := filestoretest.NewBackend(0, "bkt")
	backend.Script(filestore.Page{Keys: []string{"ab", "abcdef", "abcd"}})
	bucket := filestore.NewRegion(backend, nil).Bucket("bkt")

	keys, err := filestore.Collect(filestore.Prefixed(bucket, "abcd").List(context.Background(), ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "ef"}, keys)
}

func TestPrefixed_OcketAndRemoveExtendKey(t *testing.T) {
	_, bucket := memoryBucket(t, 0)
	ctx := context.Background()
	scoped := filestore.Prefixed(bucket, "dir/")

	require.NoError(t, filestore.NewText(scoped.Ocket("file.txt")).WriteString(ctx, "hello"))

	got, err := filestore.NewText(bucket.Ocket("dir/file.txt")).ReadString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "dir/file.txt", scoped.Ocket("file.txt").Key())

	require.NoError(t, scoped.Remove(ctx, "file.txt"))
	exists, err := bucket.Ocket("dir/file.txt").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPrefixed_EmptyKeyIsIllegal(t *testing.T) {
	_, bucket := memoryBucket(t, 0)
	ctx := context.Background()
	put(t, bucket, "dir/", "")
	scoped := filestore.Prefixed(bucket, "dir/")

	assert.True(t, errs.IsIllegalUsage(scoped.Remove(ctx, "")))
	_, err := scoped.Ocket("").Exists(ctx)
	assert.True(t, errs.IsIllegalUsage(err))
	assert.True(t, errs.IsIllegalUsage(filestore.NewText(scoped.Ocket("")).WriteString(ctx, "x")))

	exists, err := bucket.Ocket("dir/").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPrefixed_DelegatesIdentity(t *testing.T) {
	_, bucket := memoryBucket(t, 0)
	scoped := filestore.Prefixed(bucket, "pfx/")

	assert.Equal(t, bucket.Name(), scoped.Name())
	assert.True(t, filestore.SameRegion(bucket.Region(), scoped.Region()))
	assert.True(t, filestore.SameBucket(bucket, scoped))

	exists, err := scoped.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPrefixed_NextPastEnd(t *testing.T) {
	_, bucket := memoryBucket(t, 0)
	it := filestore.Prefixed(bucket, "none/").List(context.Background(), "")

	_, err := it.Next()
	assert.True(t, errs.IsIllegalUsage(err))
	assert.True(t, errs.IsIllegalUsage(it.Remove()))
}
