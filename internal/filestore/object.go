package filestore

import (
	"time"
)

// Metadata describes a stored object. Every field is optional: the zero
// value of a string field and a nil pointer both mean "not reported".
type Metadata struct {
	// ContentType is the MIME type (e.g. "image/jpeg").
	ContentType string `json:"content_type,omitempty"`

	// ContentEncoding is the content encoding (e.g. "gzip", "UTF-8").
	ContentEncoding string `json:"content_encoding,omitempty"`

	// ContentLength is the byte size of the object.
	ContentLength *int64 `json:"content_length,omitempty"`

	// LastModified is when the object was last written.
	LastModified *time.Time `json:"last_modified,omitempty"`

	// ETag is the object's integrity tag, as returned by the backend.
	ETag string `json:"etag,omitempty"`
}

// WithLength returns a copy of m with ContentLength set to n.
func (m Metadata) WithLength(n int64) Metadata {
	m.ContentLength = &n
	return m
}

// Length returns ContentLength, or -1 when it is unknown.
func (m Metadata) Length() int64 {
	if m.ContentLength == nil {
		return -1
	}
	return *m.ContentLength
}

// Page is one fetch's worth of listing results.
type Page struct {
	// Keys holds the keys of this page in the order the backend reported.
	Keys []string

	// Cursor resumes the listing after this page. Empty means none.
	Cursor string

	// Truncated is true when more pages may follow.
	Truncated bool
}
