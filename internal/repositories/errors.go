package repositories

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("requested record not found")

	// ErrDatabaseError is returned for unexpected database errors.
	// It can be used to wrap more specific driver errors.
	ErrDatabaseError = errors.New("database error")

	// ErrInvalidState is returned when the record's current state does not permit the operation.
	ErrInvalidState = errors.New("operation not permitted in current state")

	// ErrNegativeStock is returned when an adjustment would take a quantity below zero.
	ErrNegativeStock = errors.New("adjustment would make stock negative")

	// ErrOutOfStock is returned when no copy of a book is available to lend.
	ErrOutOfStock = errors.New("no available copies")

	// ErrOverlap is returned when a reservation intersects an active booking of the same lab.
	ErrOverlap = errors.New("lab is already booked for an overlapping interval")

	// ErrAlreadyReturned is returned by the ledger for a second return of the same loan.
	// Callers treat it as a successful no-op.
	ErrAlreadyReturned = errors.New("borrow record already returned")

	// ErrInUse is returned when retiring an item still linked to pending requests.
	ErrInUse = errors.New("record is referenced by pending requests")

	// ErrConflict is returned when a commit lost a race or violated a uniqueness rule.
	// The caller may retry the whole operation from a fresh read.
	ErrConflict = errors.New("concurrent update conflict")
)

// SQLExecutor defines an interface that can be satisfied by *sql.DB or *sql.Tx
// This allows repository methods to be used within transactions or with a direct DB connection.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// scanner is an interface satisfied by *sql.Row and *sql.Rows.
// This allows for generic scanning helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}
