package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/ocket/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errTooManyConnections = 1040
	errLockWaitTimeout    = 1205
	errDeadlock           = 1213
	errConnRefused        = 2003
	errServerGone         = 2006
	errServerLost         = 2013
)

// PostgreSQL SQLSTATE codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// mapError converts a database/sql, pgx or MySQL error into a *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.ErrKindTransient, msg, err)
	case errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindPermanent, msg, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, gomysql.ErrInvalidConn):
		return errs.Wrap(errs.ErrKindTransient, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception class
			pgErr.Code == pgSerializationFailure,
			pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgTooManyConnections,
			pgErr.Code == pgAdminShutdown,
			pgErr.Code == pgCannotConnectNow:
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		default:
			return errs.Wrap(errs.ErrKindPermanent, msg, err)
		}
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errTooManyConnections, errLockWaitTimeout, errDeadlock,
			errConnRefused, errServerGone, errServerLost:
			return errs.Wrap(errs.ErrKindTransient, msg, err)
		default:
			return errs.Wrap(errs.ErrKindPermanent, msg, err)
		}
	}

	// Errors without a server response come from the network
	return errs.Wrap(errs.ErrKindTransient, msg, err)
}
