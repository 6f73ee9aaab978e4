package filestore

import (
	"context"
	"io"
)

// Empty is a valid Ocket with nothing behind it: it always exists, has empty
// metadata and content, and ignores writes. It belongs to no bucket.
var Empty Ocket = emptyOcket{}

type emptyOcket struct{}

func (emptyOcket) Bucket() Bucket { return nil }

func (emptyOcket) Key() string { return "empty" }

func (emptyOcket) Meta(context.Context) (Metadata, error) { return Metadata{}, nil }

func (emptyOcket) Exists(context.Context) (bool, error) { return true, nil }

func (emptyOcket) Read(context.Context, io.Writer) error { return nil }

func (emptyOcket) Write(context.Context, io.Reader, Metadata) error { return nil }
