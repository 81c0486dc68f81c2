package mysql

import (
	"context"
	"database/sql"

	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrLockDeadlock   = 1213
	mysqlErrLockWait       = 1205
)

// repoError implements repositories.RepositoryError over driver failures.
type repoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string {
	if e == nil || e.err == nil {
		return "mysql: unknown error"
	}
	return e.err.Error()
}

func (e *repoError) Unwrap() error       { return e.err }
func (e *repoError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *repoError) IsConflict() bool    { return e != nil && e.conflict }
func (e *repoError) IsUnavailable() bool { return e != nil && e.unavailable }

func notFoundError(op string) error {
	return &repoError{err: errors.Errorf("mysql: %s: not found", op), notFound: true}
}

func conflictError(op string) error {
	return &repoError{err: errors.Errorf("mysql: %s: conflict", op), conflict: true}
}

// wrapError categorises a driver error and attaches operation context.
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, "mysql: %s", op)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &repoError{err: wrapped, notFound: true}
	case isDuplicateEntry(err):
		return &repoError{err: wrapped, conflict: true}
	case isRetryableLockError(err):
		return &repoError{err: wrapped, conflict: true}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &repoError{err: wrapped, unavailable: true}
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrInvalidConn):
		return &repoError{err: wrapped, unavailable: true}
	}
	return &repoError{err: wrapped, unavailable: true}
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *driver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

func isRetryableLockError(err error) bool {
	var mysqlErr *driver.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == mysqlErrLockDeadlock || mysqlErr.Number == mysqlErrLockWait
}
