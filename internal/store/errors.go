package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrConflict     = errors.New("store: already exists")
	ErrInvalidInput = errors.New("store: invalid input")
	ErrUnavailable  = errors.New("store: unavailable")
	ErrInternal     = errors.New("store: internal error")
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrNotNullViolation    = "23502"
	pgErrCheckViolation      = "23514"
	pgErrStringTooLong       = "22001"
	pgErrInvalidText         = "22P02"
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Kind returns the sentinel err maps to, or nil for nil.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrConflict, ErrInvalidInput, ErrUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	if err == nil {
		return nil
	}
	return ErrInternal
}

func kindLabel(err error) string {
	switch Kind(err) {
	case nil:
		return ""
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrInvalidInput:
		return "invalid"
	case ErrUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// mapErr converts driver errors into the package sentinels. Errors that already
// carry a sentinel pass through; raw driver values are never exposed through Unwrap.
func (d Dialect) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != ErrInternal || errors.Is(err, ErrInternal) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUnavailable, context.Canceled)
	}
	if isConnErr(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: referenced row missing", ErrNotFound)
		case pgErrNotNullViolation, pgErrCheckViolation, pgErrStringTooLong, pgErrInvalidText:
			return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
		}
		return fmt.Errorf("%w: postgres %s", ErrInternal, pgErr.Code)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrConflict, liteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: referenced row missing", ErrNotFound)
		case sqlite3.ErrConstraintNotNull, sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %s", ErrInvalidInput, liteErr.Error())
		}
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %s", ErrUnavailable, liteErr.Error())
		}
		return fmt.Errorf("%w: sqlite %d", ErrInternal, int(liteErr.ExtendedCode))
	}

	// libsql reports constraint failures as plain messages from the remote engine.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: referenced row missing", ErrNotFound)
	case strings.Contains(msg, "NOT NULL constraint failed"), strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// isConnErr reports errors after which the pooled connection should not be trusted.
func isConnErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
