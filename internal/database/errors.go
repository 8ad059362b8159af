package database

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/example/cardbot/internal/apperrors"
)

// pgUniqueViolation is the postgres SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// mapError classifies a driver error. sql.ErrNoRows is handled by callers,
// which know which record was missing.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return apperrors.NewDuplicateError(op, err)
	}
	return apperrors.NewDatabaseError(op, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}
