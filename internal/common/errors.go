package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrUnknownBill   = errors.New("bill has never been ingested")
	ErrNotTracking   = errors.New("not tracking any bills yet")
	ErrNotTracked    = errors.New("bill is not tracked")
	ErrUnauthorized  = errors.New("unauthorized access")
	ErrConflict      = errors.New("resource conflict") // e.g. username already exists
	ErrUnknownUser   = errors.New("unknown user")
	ErrLockNotHeld   = errors.New("lock is held by another worker")
	ErrInternalError = errors.New("internal server error")
)

// FetchCause classifies why a page could not be retrieved
type FetchCause string

const (
	FetchNetwork     FetchCause = "network"
	FetchTimeout     FetchCause = "timeout"
	FetchNotFound    FetchCause = "not-found"
	FetchServerError FetchCause = "server-error"
)

// FetchError is returned when a page could not be retrieved
type FetchError struct {
	Cause      FetchCause
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Cause)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError is returned when content does not have the shape of the expected page
type ParseError struct {
	Page   string // "bill" or "listing"
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized %s page shape: %s", e.Page, e.Reason)
}

// ValidationError reports malformed user input such as a bad bill designation
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// IsFetchCause reports whether err is a FetchError with the given cause
func IsFetchCause(err error, cause FetchCause) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Cause == cause
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Cause == FetchNotFound {
			return http.StatusNotFound
		}
		if fetchErr.Cause == FetchTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(err, ErrUnknownBill), errors.Is(err, ErrUnknownUser),
		errors.Is(err, ErrNotTracked), errors.Is(err, ErrNotTracking):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLockNotHeld):
		return http.StatusConflict
	}

	if IsUniqueViolation(err) {
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// IsUniqueViolation detects unique constraint failures from any of the supported drivers
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// extended result codes disabled
			return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
