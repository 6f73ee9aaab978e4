package filestore

import (
	"bytes"
	"context"
	"strings"
)

// Text is an Ocket with string helpers.
type Text struct {
	Ocket
}

// NewText wraps o.
func NewText(o Ocket) Text {
	return Text{Ocket: o}
}

// ReadString returns the full content as a string.
func (t Text) ReadString(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := t.Read(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteString replaces the content with text as "text/plain".
func (t Text) WriteString(ctx context.Context, text string) error {
	return t.WriteStringAs(ctx, text, "text/plain")
}

// WriteStringAs replaces the content with text, stored with contentType and
// UTF-8 encoding.
func (t Text) WriteStringAs(ctx context.Context, text, contentType string) error {
	meta := Metadata{
		ContentType:     contentType,
		ContentEncoding: "UTF-8",
	}.WithLength(int64(len(text)))
	return t.Write(ctx, strings.NewReader(text), meta)
}
