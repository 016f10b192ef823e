package engine

import (
	"database/sql/driver"
	"errors"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	appErrors "github.com/admingate/admingate/pkg/errors"
)

// mapStorageError translates a driver error into the closed taxonomy. The raw
// driver message is logged and never placed into the returned error, so schema
// and vendor details stay out of caller-visible payloads.
func (e *Engine) mapStorageError(err error, resource, operation string) error {
	if err == nil {
		return nil
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	e.log.Error("storage operation failed",
		zap.String("resource", resource),
		zap.String("operation", operation),
		zap.Error(err),
	)

	switch classifyStorageError(err) {
	case violationUnique:
		return appErrors.ErrDuplicateEntry.WithMessage("A record with these values already exists")
	case violationForeignKey:
		return appErrors.ErrInvalidReference.WithMessage("Referenced record does not exist")
	case violationConstraint:
		return appErrors.ErrConstraint.WithMessage("The operation violates a data constraint")
	case violationConnection:
		return appErrors.ErrDatabaseUnavailable
	default:
		return appErrors.ErrInternalServer
	}
}

type storageViolation int

const (
	violationNone storageViolation = iota
	violationUnique
	violationForeignKey
	violationConstraint
	violationConnection
)

func classifyStorageError(err error) storageViolation {
	if errors.Is(err, driver.ErrBadConn) {
		return violationConnection
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return violationUnique
		case pgErr.Code == "23503":
			return violationForeignKey
		case strings.HasPrefix(pgErr.Code, "23"):
			return violationConstraint
		case strings.HasPrefix(pgErr.Code, "08"):
			return violationConnection
		}
		return violationNone
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return violationUnique
		case 1451, 1452:
			return violationForeignKey
		case 3819, 4025:
			return violationConstraint
		case 1040, 1042, 1043, 1053, 2002, 2003, 2006, 2013:
			return violationConnection
		}
		return violationNone
	}

	// The sqlite driver surfaces violations as plain text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"):
		return violationUnique
	case strings.Contains(msg, "foreign key constraint"):
		return violationForeignKey
	case strings.Contains(msg, "check constraint"), strings.Contains(msg, "not null constraint"):
		return violationConstraint
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "database is locked"):
		return violationConnection
	}
	return violationNone
}
