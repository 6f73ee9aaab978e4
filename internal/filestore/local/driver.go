// Package local stores objects as files under a root directory. It serves
// development setups and tests that want real I/O without a server.
//
// Layout:
//
//	<root>/<bucket>/<key>             object content
//	<root>/.meta/<bucket>/<key>.json  content type, encoding and ETag
//
// Keys must be clean slash-separated paths. A key ending in "/" is stored
// as a marker file inside the directory of the same name.
package local

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/logger"
)

const (
	metaDir    = ".meta"
	markerName = ".ocket-folder"
	tempPrefix = ".ocket-tmp-"
)

// Driver is a filesystem implementation of filestore.Backend and
// filestore.BucketAdmin.
type Driver struct {
	root     string
	pageSize int
	log      *logger.Logger
}

// sidecar is the JSON document stored next to every object.
type sidecar struct {
	ContentType     string `json:"content_type,omitempty"`
	ContentEncoding string `json:"content_encoding,omitempty"`
	ETag            string `json:"etag,omitempty"`
}

// New returns a Driver rooted at cfg.Root, creating the directory if needed.
func New(cfg *filestore.Config, log *logger.Logger) (*Driver, error) {
	if cfg.Root == "" {
		return nil, errs.New(errs.ErrKindIllegalUsage, "local storage requires a root directory")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, mapError(err, "failed to create storage root")
	}
	d := &Driver{
		root:     cfg.Root,
		pageSize: cfg.PageSizeOrDefault(),
		log:      logger.OrNop(log),
	}
	d.log.InfoWith("local storage ready", logger.Fields{"root": cfg.Root})
	return d, nil
}

// Close releases nothing; files are closed after every call.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) bucketDir(bucket string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." ||
		strings.ContainsAny(bucket, `/\`) || strings.HasPrefix(bucket, ".") {
		return "", errs.Newf(errs.ErrKindIllegalUsage, "invalid bucket name %q", bucket)
	}
	return filepath.Join(d.root, bucket), nil
}

// relPath maps a key to its path relative to the bucket directory.
func relPath(key string) (string, error) {
	name := key
	if strings.HasSuffix(key, "/") {
		name = key + markerName
	}
	if name == "" || path.IsAbs(name) || path.Clean(name) != name ||
		name == ".." || strings.HasPrefix(name, "../") || strings.Contains(name, `\`) {
		return "", errs.Newf(errs.ErrKindIllegalUsage, "invalid key path %q", key)
	}
	base := path.Base(name)
	if (base == markerName && !strings.HasSuffix(key, "/")) || strings.HasPrefix(base, tempPrefix) {
		return "", errs.Newf(errs.ErrKindIllegalUsage, "reserved key name %q", key)
	}
	return filepath.FromSlash(name), nil
}

// keyOf is the inverse of relPath.
func keyOf(rel string) string {
	key := filepath.ToSlash(rel)
	if path.Base(key) == markerName {
		return strings.TrimSuffix(key, markerName)
	}
	return key
}

func (d *Driver) paths(bucket, key string) (object, meta string, err error) {
	dir, err := d.bucketDir(bucket)
	if err != nil {
		return "", "", err
	}
	rel, err := relPath(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, rel), filepath.Join(d.root, metaDir, bucket, rel+".json"), nil
}

func (d *Driver) requireBucket(bucket string) error {
	dir, err := d.bucketDir(bucket)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return mapError(err, "bucket '"+bucket+"' not found")
	}
	if !info.IsDir() {
		return errs.Newf(errs.ErrKindNotFound, "bucket '%s' not found", bucket)
	}
	return nil
}

// --- filestore.Backend implementation ---

func (d *Driver) HeadObject(ctx context.Context, bucket, key string) (filestore.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return filestore.Metadata{}, mapError(err, "head object")
	}
	objPath, metaPath, err := d.paths(bucket, key)
	if err != nil {
		return filestore.Metadata{}, err
	}
	info, err := os.Stat(objPath)
	if err != nil {
		return filestore.Metadata{}, mapError(err, "ocket '"+key+"' not found in '"+bucket+"'")
	}
	if info.IsDir() {
		return filestore.Metadata{}, errs.Newf(errs.ErrKindNotFound, "ocket '%s' not found in '%s'", key, bucket)
	}

	sc, err := readSidecar(metaPath)
	if err != nil {
		return filestore.Metadata{}, err
	}
	if sc.ContentType == "" {
		sc.ContentType = mime.TypeByExtension(path.Ext(key))
	}
	modified := info.ModTime().UTC()
	return filestore.Metadata{
		ContentType:     sc.ContentType,
		ContentEncoding: sc.ContentEncoding,
		LastModified:    &modified,
		ETag:            sc.ETag,
	}.WithLength(info.Size()), nil
}

func (d *Driver) GetObject(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapError(err, "get object")
	}
	objPath, _, err := d.paths(bucket, key)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(objPath)
	if err != nil {
		return 0, mapError(err, "ocket '"+key+"' not found in '"+bucket+"'")
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.IsDir() {
		return 0, errs.Newf(errs.ErrKindNotFound, "ocket '%s' not found in '%s'", key, bucket)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return n, mapError(err, "failed to read ocket '"+key+"'")
	}
	return n, nil
}

// PutObject writes to a temporary file and renames it into place, so
// readers never observe a partial object.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, meta filestore.Metadata) error {
	if err := ctx.Err(); err != nil {
		return mapError(err, "put object")
	}
	objPath, metaPath, err := d.paths(bucket, key)
	if err != nil {
		return err
	}
	if err := d.requireBucket(bucket); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return mapError(err, "failed to create directory for '"+key+"'")
	}

	tmp, err := os.CreateTemp(filepath.Dir(objPath), tempPrefix+"*")
	if err != nil {
		return mapError(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	sum := newHash()
	_, copyErr := io.Copy(io.MultiWriter(tmp, sum), r)
	closeErr := tmp.Close()
	if copyErr != nil {
		return mapError(copyErr, "failed to write ocket '"+key+"'")
	}
	if closeErr != nil {
		return mapError(closeErr, "failed to write ocket '"+key+"'")
	}

	sc := sidecar{
		ContentType:     meta.ContentType,
		ContentEncoding: meta.ContentEncoding,
		ETag:            hex.EncodeToString(sum.Sum(nil)),
	}
	if err := writeSidecar(metaPath, sc); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), objPath); err != nil {
		return mapError(err, "failed to store ocket '"+key+"'")
	}
	return nil
}

// DeleteObject removes the object and its sidecar. Removing a key that does
// not exist succeeds; a missing bucket does not.
func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return mapError(err, "delete object")
	}
	objPath, metaPath, err := d.paths(bucket, key)
	if err != nil {
		return err
	}
	if err := d.requireBucket(bucket); err != nil {
		return err
	}
	if err := os.Remove(objPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mapError(err, "failed to remove ocket '"+key+"'")
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mapError(err, "failed to remove metadata of '"+key+"'")
	}
	return nil
}

// ListPage walks the bucket directory, sorts the keys and returns those
// after cursor. The cursor is the last key of the previous page.
func (d *Driver) ListPage(ctx context.Context, bucket, prefix, cursor string) (filestore.Page, error) {
	if err := d.requireBucket(bucket); err != nil {
		return filestore.Page{}, err
	}
	dir, _ := d.bucketDir(bucket)

	keys := make([]string, 0)
	err := filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := keyOf(rel)
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return filestore.Page{}, mapError(err, "failed to walk bucket '"+bucket+"'")
	}

	sort.Strings(keys)
	if len(keys) <= d.pageSize {
		return filestore.Page{Keys: keys}, nil
	}
	keys = keys[:d.pageSize]
	return filestore.Page{Keys: keys, Cursor: keys[len(keys)-1], Truncated: true}, nil
}

func (d *Driver) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapError(err, "bucket exists")
	}
	err := d.requireBucket(bucket)
	if errs.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// --- filestore.BucketAdmin implementation ---

func (d *Driver) CreateBucket(_ context.Context, bucket string) error {
	dir, err := d.bucketDir(bucket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mapError(err, "failed to create bucket '"+bucket+"'")
	}
	return nil
}

// DeleteBucket removes the bucket together with all its objects.
func (d *Driver) DeleteBucket(_ context.Context, bucket string) error {
	dir, err := d.bucketDir(bucket)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return mapError(err, "failed to remove bucket '"+bucket+"'")
	}
	if err := os.RemoveAll(filepath.Join(d.root, metaDir, bucket)); err != nil {
		return mapError(err, "failed to remove metadata of bucket '"+bucket+"'")
	}
	return nil
}

// --- helpers ---

func newHash() hash.Hash {
	// New256 only fails for keys longer than 64 bytes
	h, _ := blake2b.New256(nil)
	return h
}

func readSidecar(p string) (sidecar, error) {
	var sc sidecar
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return sc, nil
	}
	if err != nil {
		return sc, mapError(err, "failed to read metadata")
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, errs.Wrap(errs.ErrKindPermanent, "corrupt metadata file "+p, err)
	}
	return sc, nil
}

func writeSidecar(p string, sc sidecar) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to encode metadata", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return mapError(err, "failed to create metadata directory")
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return mapError(err, "failed to write metadata")
	}
	return nil
}

func mapError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.ErrKindTransient, msg, err)
	default:
		return errs.Wrap(errs.ErrKindPermanent, msg, err)
	}
}
