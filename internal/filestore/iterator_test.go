package filestore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/filestore/filestoretest"
)

func scripted(pages ...filestore.Page) (*filestoretest.Backend, filestore.KeyIterator) {
	backend := filestoretest.NewBackend(0, "bkt")
	backend.Script(pages...)
	return backend, filestore.NewKeyIterator(context.Background(), backend, "bkt", "", nil)
}

func TestKeyIterator_TwoPages(t *testing.T) {
	backend, it := scripted(
		filestore.Page{Keys: []string{"first"}, Cursor: "tok", Truncated: true},
		filestore.Page{Keys: []string{"second"}},
	)

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	second, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "second", second)

	ok, err := it.HasNext()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = it.Next()
	assert.True(t, errs.IsIllegalUsage(err))

	assert.Equal(t, []string{"", "tok"}, backend.Cursors())
}

func TestKeyIterator_Lazy(t *testing.T) {
	backend, _ := scripted(filestore.Page{Keys: []string{"a"}})
	assert.Zero(t, backend.Calls(filestoretest.OpList))
}

func TestKeyIterator_EmptyListing(t *testing.T) {
	_, it := scripted(filestore.Page{})

	ok, err := it.HasNext()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = it.Next()
	assert.True(t, errs.IsIllegalUsage(err))
}

func TestKeyIterator_EmptyTruncatedPageIsNotTheEnd(t *testing.T) {
	backend, it := scripted(
		filestore.Page{Cursor: "c1", Truncated: true},
		filestore.Page{Cursor: "c2", Truncated: true},
		filestore.Page{Keys: []string{"late"}},
	)

	keys, err := filestore.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, keys)
	assert.Equal(t, 3, backend.Calls(filestoretest.OpList))
}

func TestKeyIterator_PreservesBackendOrder(t *testing.T) {
	_, it := scripted(
		filestore.Page{Keys: []string{"z", "a", "m"}, Cursor: "m", Truncated: true},
		filestore.Page{Keys: []string{"b"}},
	)

	keys, err := filestore.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m", "b"}, keys)
}

func TestKeyIterator_ExhaustedStaysExhausted(t *testing.T) {
	backend, it := scripted(filestore.Page{Keys: []string{"only"}})

	_, err := filestore.Collect(it)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := it.HasNext()
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, backend.Calls(filestoretest.OpList))
}

func TestKeyIterator_FetchFailureIsStateAndRepeatable(t *testing.T) {
	backend, it := scripted(
		filestore.Page{Keys: []string{"first"}, Cursor: "tok", Truncated: true},
		filestore.Page{Keys: []string{"second"}},
	)
	cause := errs.New(errs.ErrKindTransient, "503 slow down")

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	backend.FailNext(filestoretest.OpList, cause)
	_, err = it.Next()
	require.Error(t, err)
	assert.True(t, errs.IsState(err))
	assert.True(t, errors.Is(err, cause))

	second, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "second", second)
	assert.Equal(t, []string{"", "tok", "tok"}, backend.Cursors())
}

func TestKeyIterator_CursorMustAdvance(t *testing.T) {
	_, it := scripted(
		filestore.Page{Keys: []string{"a"}, Cursor: "c", Truncated: true},
		filestore.Page{Cursor: "c", Truncated: true},
	)

	_, err := it.Next()
	require.NoError(t, err)
	_, err = it.HasNext()
	assert.True(t, errs.IsState(err))
}

func TestKeyIterator_TruncatedWithoutCursorEnds(t *testing.T) {
	backend, it := scripted(
		filestore.Page{Truncated: true},
		filestore.Page{Keys: []string{"never"}},
	)

	ok, err := it.HasNext()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{""}, backend.Cursors())

	_, it = scripted(filestore.Page{Keys: []string{"only"}, Truncated: true})
	keys, err := filestore.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, keys)
}

func TestKeyIterator_RemoveUnsupported(t *testing.T) {
	_, it := scripted()
	assert.True(t, errs.IsIllegalUsage(it.Remove()))
}

func TestKeyIterator_PagesThroughBackend(t *testing.T) {
	backend := filestoretest.NewBackend(2, "bkt")
	bucket := filestore.NewRegion(backend, nil).Bucket("bkt")
	ctx := context.Background()

	want := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		key := fmt.Sprintf("k%02d", i)
		want = append(want, key)
		require.NoError(t, filestore.NewText(bucket.Ocket(key)).WriteString(ctx, key))
	}

	keys, err := filestore.Collect(bucket.List(ctx, ""))
	require.NoError(t, err)
	assert.Equal(t, want, keys)
	assert.Equal(t, 4, backend.Calls(filestoretest.OpList))
}

func TestAll_StopsEarly(t *testing.T) {
	_, it := scripted(filestore.Page{Keys: []string{"a", "b", "c"}})

	var seen []string
	for key, err := range filestore.All(it) {
		require.NoError(t, err)
		seen = append(seen, key)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)

	rest, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "c", rest)
}

func TestAll_YieldsError(t *testing.T) {
	backend, it := scripted()
	backend.FailNext(filestoretest.OpList, errs.New(errs.ErrKindPermanent, "denied"))

	var got error
	for _, err := range filestore.All(it) {
		got = err
	}
	assert.True(t, errs.IsState(got))
}
