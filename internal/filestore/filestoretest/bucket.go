package filestoretest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/koustreak/ocket/internal/filestore"
)

// RandomName returns a bucket name that will not collide with other tests.
func RandomName() string {
	return "ocket-test-" + uuid.NewString()
}

// RandomBucket creates a fresh bucket through admin and returns its handle
// from region. The bucket is dropped when the test ends.
func RandomBucket(t testing.TB, region filestore.Region, admin filestore.BucketAdmin) filestore.Bucket {
	t.Helper()
	name := RandomName()
	if err := admin.CreateBucket(context.Background(), name); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := admin.DeleteBucket(context.Background(), name); err != nil {
			t.Logf("delete bucket %s: %v", name, err)
		}
	})
	return region.Bucket(name)
}
