package db

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Spok95/tutorcenter/internal/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeExclusionViolation  = "23P01"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// mapErr turns constraint violations into domain errors. The pgx driver
// reports *pgconn.PgError, lib/pq (used by the test harness) *pq.Error.
func mapErr(entity string, err error) error {
	if err == nil {
		return nil
	}
	var code, constraint, detail string
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code, constraint, detail = pgErr.Code, pgErr.ConstraintName, pgErr.Detail
	case errors.As(err, &pqErr):
		code, constraint, detail = string(pqErr.Code), pqErr.Constraint, pqErr.Detail
	default:
		return err
	}

	switch code {
	case codeUniqueViolation, codeExclusionViolation:
		e := apperr.Conflict(entity, constraint, "%s conflicts with an existing record", entity)
		e.Err = err
		if detail != "" {
			e.Msg += ": " + detail
		}
		return e
	case codeForeignKeyViolation:
		e := apperr.NotFound(entity, constraint)
		e.Msg = "referenced record does not exist"
		e.Err = err
		return e
	case codeCheckViolation:
		e := apperr.Validation("value rejected by " + constraint)
		e.Err = err
		return e
	}
	return err
}

// notFound maps sql.ErrNoRows to a NotFound error for entity id.
func notFound(entity string, id any, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}
