package services

import (
	"errors"

	"school_resources_backend/internal/repositories"
)

// --- Service Errors ---
var (
	ErrForbidden  = errors.New("role is not permitted to perform this action")
	ErrValidation = errors.New("validation error")
)

// Ledger errors are surfaced to callers unchanged; the aliases let handlers
// depend on this package only.
var (
	ErrNotFound      = repositories.ErrNotFound
	ErrInvalidState  = repositories.ErrInvalidState
	ErrNegativeStock = repositories.ErrNegativeStock
	ErrOutOfStock    = repositories.ErrOutOfStock
	ErrOverlap       = repositories.ErrOverlap
	ErrInUse         = repositories.ErrInUse
	ErrConflict      = repositories.ErrConflict
	ErrDatabase      = repositories.ErrDatabaseError
)
