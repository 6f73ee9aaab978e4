package cached_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocket/internal/cache"
	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/filestore/cached"
	"github.com/koustreak/ocket/internal/filestore/filestoretest"
)

func setup(t *testing.T, opts ...cache.Option) (*filestoretest.Backend, filestore.Region, filestore.Region) {
	t.Helper()
	backend := filestoretest.NewBackend(0, "bkt")
	plain := filestore.NewRegion(backend, nil)
	region, err := cached.NewRegion(plain, opts...)
	require.NoError(t, err)
	return backend, plain, region
}

func write(t *testing.T, o filestore.Ocket, content string) {
	t.Helper()
	require.NoError(t, filestore.NewText(o).WriteString(context.Background(), content))
}

func read(t *testing.T, o filestore.Ocket) string {
	t.Helper()
	text, err := filestore.NewText(o).ReadString(context.Background())
	require.NoError(t, err)
	return text
}

func TestCached_ReadThrough(t *testing.T) {
	backend, _, region := setup(t)
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "hello")

	assert.Equal(t, "hello", read(t, o))
	assert.Equal(t, "hello", read(t, o))
	assert.Equal(t, 1, backend.Calls(filestoretest.OpGet))
}

func TestCached_WriteInvalidates(t *testing.T) {
	backend, _, region := setup(t)
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "v1")
	assert.Equal(t, "v1", read(t, o))

	write(t, o, "v2")
	assert.Equal(t, "v2", read(t, o))
	assert.Equal(t, 2, backend.Calls(filestoretest.OpGet))

	meta, err := o.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.Length())
}

func TestCached_FailedWriteStillInvalidates(t *testing.T) {
	backend, _, region := setup(t)
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "v1")
	assert.Equal(t, "v1", read(t, o))

	backend.FailNext(filestoretest.OpPut, errs.New(errs.ErrKindTransient, "reset"))
	err := filestore.NewText(o).WriteString(context.Background(), "v2")
	require.Error(t, err)

	assert.Equal(t, "v1", read(t, o))
	assert.Equal(t, 2, backend.Calls(filestoretest.OpGet))
}

func TestCached_RemoveInvalidates(t *testing.T) {
	_, _, region := setup(t)
	ctx := context.Background()
	bucket := region.Bucket("bkt")
	write(t, bucket.Ocket("k"), "x")

	exists, err := bucket.Ocket("k").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, bucket.Remove(ctx, "k"))

	exists, err = bucket.Ocket("k").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = bucket.Ocket("k").Meta(ctx)
	assert.True(t, errs.IsNotFound(err))
}

func TestCached_RemoveOverPrefixedBucket(t *testing.T) {
	_, plain, _ := setup(t)
	ctx := context.Background()
	bucket, err := cached.NewBucket(filestore.Prefixed(plain.Bucket("bkt"), "p/"))
	require.NoError(t, err)

	write(t, bucket.Ocket("k"), "v1")
	assert.Equal(t, "v1", read(t, bucket.Ocket("k")))
	exists, err := bucket.Ocket("k").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, bucket.Remove(ctx, "k"))

	exists, err = bucket.Ocket("k").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	err = bucket.Ocket("k").Read(ctx, &bytes.Buffer{})
	assert.True(t, errs.IsNotFound(err))
}

func TestCached_ExistsAndMetaAreCached(t *testing.T) {
	backend, _, region := setup(t)
	ctx := context.Background()
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "x")

	for i := 0; i < 3; i++ {
		_, err := o.Exists(ctx)
		require.NoError(t, err)
		_, err = o.Meta(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, backend.Calls(filestoretest.OpHead))
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	backend, _, region := setup(t)
	ctx := context.Background()
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "x")

	backend.FailNext(filestoretest.OpHead, errs.New(errs.ErrKindTransient, "timeout"))
	_, err := o.Meta(ctx)
	assert.True(t, errs.IsTransient(err))

	_, err = o.Meta(ctx)
	require.NoError(t, err)

	ghost := region.Bucket("bkt").Ocket("ghost")
	assert.True(t, errs.IsNotFound(ghost.Read(ctx, &bytes.Buffer{})))
	assert.True(t, errs.IsNotFound(ghost.Read(ctx, &bytes.Buffer{})))
	assert.Equal(t, 2, backend.Calls(filestoretest.OpGet))
}

func TestCached_StoreSharedByDerivedHandles(t *testing.T) {
	backend, _, region := setup(t)
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "x")
	read(t, o)

	read(t, region.Bucket("bkt").Ocket("k"))
	read(t, o.Bucket().Ocket("k"))
	read(t, o.Bucket().Region().Bucket("bkt").Ocket("k"))
	assert.Equal(t, 1, backend.Calls(filestoretest.OpGet))
}

func TestCached_InstancesDoNotShare(t *testing.T) {
	backend, plain, first := setup(t)
	second, err := cached.NewRegion(plain)
	require.NoError(t, err)
	write(t, first.Bucket("bkt").Ocket("k"), "x")

	read(t, first.Bucket("bkt").Ocket("k"))
	read(t, second.Bucket("bkt").Ocket("k"))
	assert.Equal(t, 2, backend.Calls(filestoretest.OpGet))
}

func TestCached_WritesBehindTheCacheAreNotSeen(t *testing.T) {
	_, plain, region := setup(t)
	write(t, region.Bucket("bkt").Ocket("k"), "v1")
	assert.Equal(t, "v1", read(t, region.Bucket("bkt").Ocket("k")))

	write(t, plain.Bucket("bkt").Ocket("k"), "v2")
	assert.Equal(t, "v1", read(t, region.Bucket("bkt").Ocket("k")))
}

func TestCached_ListAndBucketExistsPassThrough(t *testing.T) {
	backend, _, region := setup(t)
	ctx := context.Background()
	bucket := region.Bucket("bkt")
	write(t, bucket.Ocket("a"), "1")
	write(t, bucket.Ocket("b"), "2")

	for i := 0; i < 2; i++ {
		keys, err := filestore.Collect(bucket.List(ctx, ""))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)

		exists, err := bucket.Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	}
	assert.Equal(t, 2, backend.Calls(filestoretest.OpList))
	assert.Equal(t, 2, backend.Calls(filestoretest.OpExists))
}

func TestCached_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, _, region := setup(t, cache.WithMetrics(reg, "ockets"))
	o := region.Bucket("bkt").Ocket("k")
	write(t, o, "x")
	read(t, o)
	read(t, o)

	assert.Equal(t, float64(1), counterValue(t, reg, "ocket_cache_hits_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "ocket_cache_misses_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCached_PreservesIdentity(t *testing.T) {
	_, plain, region := setup(t)
	twice, err := cached.NewRegion(region)
	require.NoError(t, err)

	assert.True(t, filestore.SameRegion(plain, twice))
	assert.True(t, filestore.SameBucket(plain.Bucket("bkt"), twice.Bucket("bkt")))
	assert.True(t, filestore.SameOcket(plain.Bucket("bkt").Ocket("k"), twice.Bucket("bkt").Ocket("k")))

	o, err := cached.NewOcket(filestore.Empty)
	require.NoError(t, err)
	assert.Nil(t, o.Bucket())
	assert.Equal(t, "empty", o.Key())
}
