package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/signpost/internal/domain/model"
)

// Sentinel kinds for store errors. Not found and duplicate share identity
// with the domain errors so callers need not import this package to match.
var (
	ErrNotFound          = model.ErrNotFound
	ErrDuplicate         = model.ErrDuplicate
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrLinkConflict      = errors.New("conflicting link")
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
