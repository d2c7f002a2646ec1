package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"school_resources_backend/internal/models"
)

// LabBookingRepository defines the Scheduling Ledger operations.
type LabBookingRepository interface {
	CreateLab(ctx context.Context, lab *models.Lab) (*models.Lab, error)
	GetLabByNumber(ctx context.Context, labNumber string) (*models.Lab, error)
	GetLabs(ctx context.Context, availableOnly bool) ([]models.Lab, error)
	// Reserve checks the lab and the slot for overlaps and inserts a pending booking in one unit.
	Reserve(ctx context.Context, booking *models.LabBooking) (*models.LabBooking, error)
	GetBookingByID(ctx context.Context, id int64) (*models.LabBooking, error)
	GetBookings(ctx context.Context, filters models.LabBookingFilters) ([]models.LabBooking, int, error) // Newest first
	TransitionBooking(ctx context.Context, id int64, t Transition) (*models.LabBooking, bool, error)
	AnnotateBooking(ctx context.Context, id int64, notes string) (*models.LabBooking, error)
}

type labBookingRepository struct {
	db *sql.DB
}

// NewLabBookingRepository creates a new instance of LabBookingRepository.
func NewLabBookingRepository(db *sql.DB) LabBookingRepository {
	return &labBookingRepository{db: db}
}

func (r *labBookingRepository) CreateLab(ctx context.Context, lab *models.Lab) (*models.Lab, error) {
	query := `INSERT INTO labs (lab_number, capacity, equipment, is_available, created_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		lab.LabNumber, lab.Capacity, lab.Equipment, lab.IsAvailable, time.Now(),
	).Scan(&lab.CreatedAt)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("creating lab %q", lab.LabNumber))
	}
	return lab, nil
}

func (r *labBookingRepository) GetLabByNumber(ctx context.Context, labNumber string) (*models.Lab, error) {
	var lab models.Lab
	query := `SELECT lab_number, capacity, equipment, is_available, created_at FROM labs WHERE lab_number = $1`
	err := r.db.QueryRowContext(ctx, query, labNumber).Scan(&lab.LabNumber, &lab.Capacity, &lab.Equipment, &lab.IsAvailable, &lab.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting lab %q: %v", ErrDatabaseError, labNumber, err)
	}
	return &lab, nil
}

func (r *labBookingRepository) GetLabs(ctx context.Context, availableOnly bool) ([]models.Lab, error) {
	labs := []models.Lab{}
	query := `SELECT lab_number, capacity, equipment, is_available, created_at FROM labs`
	if availableOnly {
		query += " WHERE is_available = TRUE"
	}
	query += " ORDER BY lab_number"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying labs: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var lab models.Lab
		if err := rows.Scan(&lab.LabNumber, &lab.Capacity, &lab.Equipment, &lab.IsAvailable, &lab.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning lab: %v", ErrDatabaseError, err)
		}
		labs = append(labs, lab)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating labs: %v", ErrDatabaseError, err)
	}
	return labs, nil
}

const selectLabBookingFields = `id, teacher_id, lab_number, to_char(date, 'YYYY-MM-DD'), start_minute, end_minute,
	requirements, notes, status, created_at, updated_at`

func scanLabBooking(row scanner, extra ...interface{}) (*models.LabBooking, error) {
	var booking models.LabBooking
	dest := []interface{}{
		&booking.ID, &booking.TeacherID, &booking.LabNumber, &booking.Date, &booking.StartTime, &booking.EndTime,
		&booking.Requirements, &booking.Notes, &booking.Status, &booking.CreatedAt, &booking.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning lab booking: %v", ErrDatabaseError, err)
	}
	return &booking, nil
}

// lockSlot serializes every writer of one lab/date pair for the rest of tx.
func lockSlot(ctx context.Context, executor SQLExecutor, slotKey string) error {
	if _, err := executor.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", slotKey); err != nil {
		return fmt.Errorf("%w: locking slot %s: %v", ErrDatabaseError, slotKey, err)
	}
	return nil
}

func (r *labBookingRepository) Reserve(ctx context.Context, booking *models.LabBooking) (*models.LabBooking, error) {
	err := withTx(ctx, r.db, "reserving lab", func(tx *sql.Tx) error {
		if err := lockSlot(ctx, tx, booking.SlotKey()); err != nil {
			return err
		}

		var available bool
		err := tx.QueryRowContext(ctx, "SELECT is_available FROM labs WHERE lab_number = $1 FOR SHARE", booking.LabNumber).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: lab %q", ErrNotFound, booking.LabNumber)
		}
		if err != nil {
			return fmt.Errorf("%w: reading lab %q: %v", ErrDatabaseError, booking.LabNumber, err)
		}
		if !available {
			return fmt.Errorf("%w: lab %q is not available for booking", ErrInvalidState, booking.LabNumber)
		}

		// Overlapping condition: existing.start < new.end AND existing.end > new.start
		var count int
		overlapQuery := `SELECT COUNT(*) FROM lab_bookings
		                 WHERE lab_number = $1 AND date = $2
		                 AND status IN ($3, $4)
		                 AND start_minute < $6 AND end_minute > $5`
		err = tx.QueryRowContext(ctx, overlapQuery,
			booking.LabNumber, booking.Date, models.StatusPending, models.StatusApproved,
			booking.StartTime, booking.EndTime,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("%w: checking lab availability: %v", ErrDatabaseError, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: lab %s on %s %s-%s", ErrOverlap, booking.LabNumber, booking.Date, booking.StartTime, booking.EndTime)
		}

		query := `INSERT INTO lab_bookings
		            (teacher_id, lab_number, date, start_minute, end_minute, requirements, notes, status, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		          RETURNING id, created_at, updated_at`
		currentTime := time.Now()
		booking.Status = models.StatusPending
		err = tx.QueryRowContext(ctx, query,
			booking.TeacherID, booking.LabNumber, booking.Date, booking.StartTime, booking.EndTime,
			booking.Requirements, booking.Notes, booking.Status, currentTime, currentTime,
		).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			return mapDBError(err, "inserting lab booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *labBookingRepository) GetBookingByID(ctx context.Context, id int64) (*models.LabBooking, error) {
	query := "SELECT " + selectLabBookingFields + " FROM lab_bookings WHERE id = $1"
	return scanLabBooking(r.db.QueryRowContext(ctx, query, id))
}

func (r *labBookingRepository) GetBookings(ctx context.Context, filters models.LabBookingFilters) ([]models.LabBooking, int, error) {
	bookings := []models.LabBooking{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + selectLabBookingFields + ", COUNT(*) OVER() AS total_count FROM lab_bookings")

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}
	if filters.TeacherID != nil {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", argCount))
		args = append(args, *filters.TeacherID)
		argCount++
	}
	if filters.LabNumber != nil && *filters.LabNumber != "" {
		conditions = append(conditions, fmt.Sprintf("lab_number = $%d", argCount))
		args = append(args, *filters.LabNumber)
		argCount++
	}
	if filters.Date != nil && *filters.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d", argCount))
		args = append(args, *filters.Date)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")

	if limit, offset, ok := pageArgs(filters.Page, filters.PageSize); ok {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying lab bookings: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		booking, scanErr := scanLabBooking(rows, &totalCount)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		bookings = append(bookings, *booking)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating lab bookings: %v", ErrDatabaseError, err)
	}
	return bookings, totalCount, nil
}

func (r *labBookingRepository) TransitionBooking(ctx context.Context, id int64, t Transition) (*models.LabBooking, bool, error) {
	var result *models.LabBooking
	applied := false

	err := withTx(ctx, r.db, "transitioning lab booking", func(tx *sql.Tx) error {
		lockQuery := "SELECT " + selectLabBookingFields + " FROM lab_bookings WHERE id = $1 FOR UPDATE"
		current, err := scanLabBooking(tx.QueryRowContext(ctx, lockQuery, id))
		if err != nil {
			return err
		}
		if current.Status == t.To {
			result = current
			return nil
		}
		if current.Status != models.StatusPending {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidState, id, current.Status)
		}
		if err := lockSlot(ctx, tx, current.SlotKey()); err != nil {
			return err
		}

		query := `UPDATE lab_bookings SET status = $1, updated_at = $2 WHERE id = $3 RETURNING ` + selectLabBookingFields
		result, err = scanLabBooking(tx.QueryRowContext(ctx, query, t.To, time.Now(), id))
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}

func (r *labBookingRepository) AnnotateBooking(ctx context.Context, id int64, notes string) (*models.LabBooking, error) {
	query := `UPDATE lab_bookings SET notes = $1, updated_at = $2 WHERE id = $3 RETURNING ` + selectLabBookingFields
	return scanLabBooking(r.db.QueryRowContext(ctx, query, notes, time.Now(), id))
}
