// Package sqlstore keeps objects in a relational database. PostgreSQL is
// reached through pgx's database/sql driver, MySQL through
// go-sql-driver/mysql; both share one Driver and differ only in dialect.
//
// Objects are whole rows in ocket_objects, so this backend suits small
// payloads (configuration, manifests, test fixtures) rather than media.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/blake2b"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/logger"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// Driver is a SQL implementation of filestore.Backend and
// filestore.BucketAdmin. It is safe for concurrent use.
type Driver struct {
	db       *sql.DB
	dialect  dialect
	pageSize int
	log      *logger.Logger
}

func dialectFor(provider filestore.Provider) (dialect, error) {
	switch provider {
	case filestore.ProviderPostgres:
		return postgresDialect, nil
	case filestore.ProviderMySQL:
		return mysqlDialect, nil
	default:
		return dialect{}, errs.Newf(errs.ErrKindIllegalUsage, "sqlstore does not support provider %q", provider)
	}
}

// New opens a pool for cfg.DSN, verifies it with a ping and creates the
// tables if they are missing.
func New(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (*Driver, error) {
	d, err := dialectFor(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, errs.Newf(errs.ErrKindIllegalUsage, "%s storage requires a dsn", d.name)
	}

	db, err := sql.Open(d.driverName, cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindPermanent, "failed to open "+d.name, err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	drv := &Driver{
		db:       db,
		dialect:  d,
		pageSize: cfg.PageSizeOrDefault(),
		log:      logger.OrNop(log),
	}
	if err := drv.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := drv.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	drv.log.InfoWith("connected to sql storage", logger.Fields{"dialect": d.name})
	return drv, nil
}

// Ping checks that the database is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// EnsureSchema creates the bucket and object tables if they do not exist.
func (d *Driver) EnsureSchema(ctx context.Context) error {
	for _, stmt := range d.dialect.schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return mapError(err, "failed to create schema")
		}
	}
	return nil
}

// Close closes the connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) requireBucket(ctx context.Context, bucket string) error {
	ok, err := d.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "bucket '%s' not found", bucket)
	}
	return nil
}

// --- filestore.Backend implementation ---

func (d *Driver) HeadObject(ctx context.Context, bucket, key string) (filestore.Metadata, error) {
	q := d.dialect.headQuery(bucket, key)
	var (
		length   int64
		meta     filestore.Metadata
		modified int64
	)
	err := d.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(
		&length, &meta.ContentType, &meta.ContentEncoding, &meta.ETag, &modified,
	)
	if err != nil {
		return filestore.Metadata{}, mapError(err, "ocket '"+key+"' not found in '"+bucket+"'")
	}
	ts := time.UnixMilli(modified).UTC()
	meta.LastModified = &ts
	return meta.WithLength(length), nil
}

func (d *Driver) GetObject(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	q := d.dialect.getQuery(bucket, key)
	var content []byte
	if err := d.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&content); err != nil {
		return 0, mapError(err, "ocket '"+key+"' not found in '"+bucket+"'")
	}
	n, err := w.Write(content)
	if err != nil {
		return int64(n), errs.Wrap(errs.ErrKindPermanent, "failed to copy ocket '"+key+"'", err)
	}
	return int64(n), nil
}

// PutObject reads r fully and upserts the row.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, meta filestore.Metadata) error {
	if err := d.requireBucket(ctx, bucket); err != nil {
		return err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return errs.Wrap(errs.ErrKindPermanent, "failed to read content for '"+key+"'", err)
	}
	sum := blake2b.Sum256(content)

	q := d.dialect.putQuery(bucket, key, content, meta.ContentType, meta.ContentEncoding,
		hex.EncodeToString(sum[:]), time.Now().UnixMilli())
	if _, err := d.db.ExecContext(ctx, q.SQL, q.Args...); err != nil {
		return mapError(err, "failed to store ocket '"+key+"'")
	}
	return nil
}

// DeleteObject removes the row. Deleting a missing key succeeds.
func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := d.requireBucket(ctx, bucket); err != nil {
		return err
	}
	q := d.dialect.deleteQuery(bucket, key)
	if _, err := d.db.ExecContext(ctx, q.SQL, q.Args...); err != nil {
		return mapError(err, "failed to delete ocket '"+key+"'")
	}
	return nil
}

// ListPage uses keyset pagination: the cursor is the last key returned.
func (d *Driver) ListPage(ctx context.Context, bucket, prefix, cursor string) (filestore.Page, error) {
	if err := d.requireBucket(ctx, bucket); err != nil {
		return filestore.Page{}, err
	}
	q := d.dialect.listQuery(bucket, prefix, cursor, d.pageSize)
	rows, err := d.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return filestore.Page{}, mapError(err, "failed to list ockets")
	}
	defer rows.Close()

	keys := make([]string, 0, d.pageSize)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return filestore.Page{}, mapError(err, "failed to scan key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return filestore.Page{}, mapError(err, "failed to list ockets")
	}
	return toPage(keys, d.pageSize), nil
}

// toPage trims the look-ahead key fetched by listQuery.
func toPage(keys []string, pageSize int) filestore.Page {
	if len(keys) <= pageSize {
		return filestore.Page{Keys: keys}
	}
	keys = keys[:pageSize]
	return filestore.Page{Keys: keys, Cursor: keys[len(keys)-1], Truncated: true}
}

func (d *Driver) BucketExists(ctx context.Context, bucket string) (bool, error) {
	q := d.dialect.bucketExistsQuery(bucket)
	var count int
	if err := d.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
		return false, mapError(err, "failed to check bucket '"+bucket+"'")
	}
	return count > 0, nil
}

// --- filestore.BucketAdmin implementation ---

func (d *Driver) CreateBucket(ctx context.Context, bucket string) error {
	q := d.dialect.createBucketQuery(bucket, time.Now().UnixMilli())
	if _, err := d.db.ExecContext(ctx, q.SQL, q.Args...); err != nil {
		return mapError(err, "failed to create bucket '"+bucket+"'")
	}
	return nil
}

// DeleteBucket drops the bucket and all its objects in one transaction.
func (d *Driver) DeleteBucket(ctx context.Context, bucket string) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				d.log.WarnWith("rollback failed", rbErr, logger.Fields{"bucket": bucket})
			}
		}
	}()

	for _, q := range d.dialect.dropBucketQueries(bucket) {
		if _, err = tx.ExecContext(ctx, q.SQL, q.Args...); err != nil {
			return mapError(err, "failed to delete bucket '"+bucket+"'")
		}
	}
	if err = tx.Commit(); err != nil {
		return mapError(err, "failed to commit bucket deletion")
	}
	return nil
}
