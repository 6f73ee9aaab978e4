package sqlstore

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// dialect holds everything that differs between PostgreSQL and MySQL.
type dialect struct {
	name       string
	driverName string // database/sql driver registered by the import
	schema     []string
	upsert     string // suffix turning an INSERT into an upsert
	insertOnce func(table, cols, values string) string
	// prefixLen returns the LEFT() length that selects prefix. Postgres
	// counts characters of a text column, MySQL bytes of a binary one.
	prefixLen   func(prefix string) int
	placeholder func(n int) string
}

var postgresDialect = dialect{
	name:       "postgres",
	driverName: "pgx",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ocket_buckets (
			name       VARCHAR(255) PRIMARY KEY,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ocket_objects (
			bucket_name      VARCHAR(255) NOT NULL,
			object_key       TEXT COLLATE "C" NOT NULL,
			content          BYTEA NOT NULL,
			content_length   BIGINT NOT NULL,
			content_type     VARCHAR(255) NOT NULL DEFAULT '',
			content_encoding VARCHAR(255) NOT NULL DEFAULT '',
			etag             VARCHAR(128) NOT NULL DEFAULT '',
			modified_at      BIGINT NOT NULL,
			PRIMARY KEY (bucket_name, object_key)
		)`,
	},
	upsert: ` ON CONFLICT (bucket_name, object_key) DO UPDATE SET
		content = EXCLUDED.content,
		content_length = EXCLUDED.content_length,
		content_type = EXCLUDED.content_type,
		content_encoding = EXCLUDED.content_encoding,
		etag = EXCLUDED.etag,
		modified_at = EXCLUDED.modified_at`,
	insertOnce: func(table, cols, values string) string {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", table, cols, values)
	},
	prefixLen:   utf8.RuneCountInString,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

var mysqlDialect = dialect{
	name:       "mysql",
	driverName: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ocket_buckets (
			name       VARCHAR(255) NOT NULL PRIMARY KEY,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ocket_objects (
			bucket_name      VARCHAR(255) NOT NULL,
			object_key       VARBINARY(1024) NOT NULL,
			content          LONGBLOB NOT NULL,
			content_length   BIGINT NOT NULL,
			content_type     VARCHAR(255) NOT NULL DEFAULT '',
			content_encoding VARCHAR(255) NOT NULL DEFAULT '',
			etag             VARCHAR(128) NOT NULL DEFAULT '',
			modified_at      BIGINT NOT NULL,
			PRIMARY KEY (bucket_name, object_key)
		)`,
	},
	upsert: ` ON DUPLICATE KEY UPDATE
		content = VALUES(content),
		content_length = VALUES(content_length),
		content_type = VALUES(content_type),
		content_encoding = VALUES(content_encoding),
		etag = VALUES(etag),
		modified_at = VALUES(modified_at)`,
	insertOnce: func(table, cols, values string) string {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, cols, values)
	},
	prefixLen:   func(prefix string) int { return len(prefix) },
	placeholder: func(int) string { return "?" },
}

// Query is a statement with its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// placeholders returns n comma-separated placeholders starting at 1.
func (d dialect) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

const objectColumns = "bucket_name, object_key, content, content_length, content_type, content_encoding, etag, modified_at"

func (d dialect) putQuery(bucket, key string, content []byte, contentType, contentEncoding, etag string, modified int64) Query {
	return Query{
		SQL: "INSERT INTO ocket_objects (" + objectColumns + ") VALUES (" + d.placeholders(8) + ")" + d.upsert,
		Args: []any{
			bucket, key, content, int64(len(content)), contentType, contentEncoding, etag, modified,
		},
	}
}

func (d dialect) headQuery(bucket, key string) Query {
	return Query{
		SQL: fmt.Sprintf(
			"SELECT content_length, content_type, content_encoding, etag, modified_at FROM ocket_objects WHERE bucket_name = %s AND object_key = %s",
			d.placeholder(1), d.placeholder(2),
		),
		Args: []any{bucket, key},
	}
}

func (d dialect) getQuery(bucket, key string) Query {
	return Query{
		SQL: fmt.Sprintf(
			"SELECT content FROM ocket_objects WHERE bucket_name = %s AND object_key = %s",
			d.placeholder(1), d.placeholder(2),
		),
		Args: []any{bucket, key},
	}
}

func (d dialect) deleteQuery(bucket, key string) Query {
	return Query{
		SQL: fmt.Sprintf(
			"DELETE FROM ocket_objects WHERE bucket_name = %s AND object_key = %s",
			d.placeholder(1), d.placeholder(2),
		),
		Args: []any{bucket, key},
	}
}

// listQuery selects one key more than limit, so the caller learns whether
// another page follows without a second round trip.
func (d dialect) listQuery(bucket, prefix, cursor string, limit int) Query {
	var sb strings.Builder
	args := []any{bucket, cursor}

	sb.WriteString("SELECT object_key FROM ocket_objects WHERE bucket_name = ")
	sb.WriteString(d.placeholder(1))
	sb.WriteString(" AND object_key > ")
	sb.WriteString(d.placeholder(2))
	if prefix != "" {
		fmt.Fprintf(&sb, " AND LEFT(object_key, %s) = %s", d.placeholder(3), d.placeholder(4))
		args = append(args, d.prefixLen(prefix), prefix)
	}
	fmt.Fprintf(&sb, " ORDER BY object_key LIMIT %d", limit+1)

	return Query{SQL: sb.String(), Args: args}
}

func (d dialect) bucketExistsQuery(bucket string) Query {
	return Query{
		SQL:  "SELECT COUNT(*) FROM ocket_buckets WHERE name = " + d.placeholder(1),
		Args: []any{bucket},
	}
}

func (d dialect) createBucketQuery(bucket string, created int64) Query {
	return Query{
		SQL:  d.insertOnce("ocket_buckets", "name, created_at", d.placeholders(2)),
		Args: []any{bucket, created},
	}
}

func (d dialect) dropBucketQueries(bucket string) []Query {
	return []Query{
		{SQL: "DELETE FROM ocket_objects WHERE bucket_name = " + d.placeholder(1), Args: []any{bucket}},
		{SQL: "DELETE FROM ocket_buckets WHERE name = " + d.placeholder(1), Args: []any{bucket}},
	}
}
