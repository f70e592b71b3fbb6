package postgres

import (
	"context"
	"errors"
	"fmt"

	"chequebook/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// classify maps a pgx error onto the domain taxonomy. Context errors pass
// through untouched so they are never mistaken for a retryable failure.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFoundf("%s: not found", msg)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeExclusionViolation, codeUniqueViolation:
			return core.ConflictError(msg+": "+pgErr.Message, err)
		case codeCheckViolation:
			if pgErr.ConstraintName == "inventory_stock_quantity_check" {
				return core.ConflictError(msg+": stock cannot go negative", err)
			}
			return fmt.Errorf("%s: %w", msg, err)
		case codeForeignKeyViolation:
			return core.NotFoundf("%s: referenced row does not exist (%s)", msg, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable,
			codeAdminShutdown, codeCannotConnectNow:
			return core.TransientError(msg, err)
		case codeQueryCanceled:
			return core.TransientError(msg+": statement timeout", err)
		}
		return fmt.Errorf("%s: %w", msg, err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return core.TransientError(msg, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return core.TransientError(msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
