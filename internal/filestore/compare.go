package filestore

import "strings"

// Identity helpers. They only look at what every decorator delegates to the
// adapter (origin region, bucket name, key), so a decorated handle is equal
// to the undecorated one it wraps.

// SameRegion reports whether a and b reach the same backend.
func SameRegion(a, b Region) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Origin() == b.Origin()
}

// SameBucket reports whether a and b name the same bucket of the same backend.
func SameBucket(a, b Bucket) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name() == b.Name() && SameRegion(a.Region(), b.Region())
}

// SameOcket reports whether a and b address the same object.
func SameOcket(a, b Ocket) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key() && SameBucket(a.Bucket(), b.Bucket())
}

// CompareBuckets orders buckets by name.
func CompareBuckets(a, b Bucket) int {
	return strings.Compare(a.Name(), b.Name())
}

// CompareOckets orders ockets by key.
func CompareOckets(a, b Ocket) int {
	return strings.Compare(a.Key(), b.Key())
}
