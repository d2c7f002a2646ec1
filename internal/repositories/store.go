package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"school_resources_backend/internal/models"

	"github.com/lib/pq"
)

// Transition describes a lifecycle move of a pending record to To.
// The ledger applies it, together with its side effect, as one atomic unit.
type Transition struct {
	Action      models.Action
	To          models.Status
	PrincipalID int64
}

// Store is the full ledger surface. Implementations: the Postgres store in
// this package and memory.Store.
type Store interface {
	InventoryRepository
	RequestRepository
	LibraryRepository
	LabBookingRepository
}

type postgresStore struct {
	InventoryRepository
	RequestRepository
	LibraryRepository
	LabBookingRepository
}

// NewPostgresStore wires every Postgres repository over one connection pool.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{
		InventoryRepository:  NewInventoryRepository(db),
		RequestRepository:    NewRequestRepository(db),
		LibraryRepository:    NewLibraryRepository(db),
		LabBookingRepository: NewLabBookingRepository(db),
	}
}

// withTx runs fn in a transaction that is committed only when fn succeeds.
func withTx(ctx context.Context, db *sql.DB, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: begin: %v", ErrDatabaseError, op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapDBError(err, op+": commit")
	}
	return nil
}

// Postgres error classes the ledgers care about.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// mapDBError converts driver errors into the repository taxonomy.
func mapDBError(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s: duplicate value (constraint: %s)", ErrConflict, op, pqErr.Constraint)
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %s: %v", ErrConflict, op, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrDatabaseError, op, err)
}

// pageArgs turns page/pageSize into LIMIT/OFFSET values; pageSize <= 0 means unbounded.
func pageArgs(page, pageSize int) (limit int, offset int, bounded bool) {
	if pageSize <= 0 {
		return 0, 0, false
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize, true
}
