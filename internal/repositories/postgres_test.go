package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"school_resources_backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var itemColumns = []string{"id", "name", "category", "department", "quantity", "threshold", "retired", "last_restocked", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func itemRows(id int64, qty int, retired bool) *sqlmock.Rows {
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(itemColumns).
		AddRow(id, "Pencils", models.CategoryStationery, "Maths", qty, 5, retired, nil, now, now)
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestAdjustQuantity_CommitsDeltaWithMovement(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM inventory_items WHERE id = $1 FOR UPDATE")).WithArgs(7).WillReturnRows(itemRows(7, 5, false))
	mock.ExpectQuery(q("UPDATE inventory_items")).
		WithArgs(-2, sqlmock.AnyArg(), sqlmock.AnyArg(), 7).
		WillReturnRows(itemRows(7, 3, false))
	mock.ExpectQuery(q("INSERT INTO inventory_movements")).
		WithArgs(7, 3, models.MovementTypeAdjustment, -2, 3, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	item, err := repo.AdjustQuantity(context.Background(), 7, -2, models.InventoryMovement{
		PrincipalID:  3,
		MovementType: models.MovementTypeAdjustment,
	})
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustQuantity_NegativeRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(7).WillReturnRows(itemRows(7, 1, false))
	mock.ExpectRollback()

	_, err := repo.AdjustQuantity(context.Background(), 7, -2, models.InventoryMovement{MovementType: models.MovementTypeAdjustment})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustQuantity_RetiredItem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(7).WillReturnRows(itemRows(7, 10, true))
	mock.ExpectRollback()

	_, err := repo.AdjustQuantity(context.Background(), 7, 1, models.InventoryMovement{MovementType: models.MovementTypeRestock})
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustQuantity_MissingItem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(99).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.AdjustQuantity(context.Background(), 99, 1, models.InventoryMovement{})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetireItem_InUse(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(7).WillReturnRows(itemRows(7, 10, false))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM resource_requests")).
		WithArgs(7, models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.RetireItem(context.Background(), 7)
	require.ErrorIs(t, err, ErrInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBorrow_OutOfStock(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT total_copies FROM books WHERE id = $1 FOR UPDATE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"total_copies"}).AddRow(2))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM borrow_records WHERE book_id = $1")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Borrow(context.Background(), &models.BorrowRecord{BookID: 4, Borrower: models.Borrower{Name: "Ana", Type: models.BorrowerStudent}})
	require.ErrorIs(t, err, ErrOutOfStock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_OverlapDetected(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLabBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).WithArgs("L1|2024-01-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT is_available FROM labs WHERE lab_number = $1 FOR SHARE")).WithArgs("L1").
		WillReturnRows(sqlmock.NewRows([]string{"is_available"}).AddRow(true))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM lab_bookings")).
		WithArgs("L1", "2024-01-10", "pending", "approved", 570, 630).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), &models.LabBooking{
		TeacherID: 1, LabNumber: "L1", Date: "2024-01-10", StartTime: 570, EndTime: 630,
	})
	require.ErrorIs(t, err, ErrOverlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_Inserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLabBookingRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(q("pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("FROM labs")).WillReturnRows(sqlmock.NewRows([]string{"is_available"}).AddRow(true))
	mock.ExpectQuery(q("FROM lab_bookings")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(q("INSERT INTO lab_bookings")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(21, now, now))
	mock.ExpectCommit()

	booking, err := repo.Reserve(context.Background(), &models.LabBooking{
		TeacherID: 1, LabNumber: "L1", Date: "2024-01-10", StartTime: 600, EndTime: 660,
	})
	require.NoError(t, err)
	require.Equal(t, int64(21), booking.ID)
	require.Equal(t, models.StatusPending, booking.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapDBError(t *testing.T) {
	require.ErrorIs(t, mapDBError(sql.ErrNoRows, "op"), ErrNotFound)
	require.ErrorIs(t, mapDBError(&pq.Error{Code: "23505", Constraint: "books_isbn_key"}, "op"), ErrConflict)
	require.ErrorIs(t, mapDBError(&pq.Error{Code: "40001"}, "op"), ErrConflict)
	require.ErrorIs(t, mapDBError(&pq.Error{Code: "40P01"}, "op"), ErrConflict)
	require.ErrorIs(t, mapDBError(errors.New("connection reset"), "op"), ErrDatabaseError)
}

func TestPageArgs(t *testing.T) {
	limit, offset, ok := pageArgs(3, 20)
	require.True(t, ok)
	require.Equal(t, 20, limit)
	require.Equal(t, 40, offset)

	_, _, ok = pageArgs(1, 0)
	require.False(t, ok)

	_, offset, _ = pageArgs(0, 10)
	require.Zero(t, offset)
}

var requestColumns = []string{"id", "requester_id", "resource_name", "resource_type", "quantity", "description",
	"inventory_item_id", "status", "created_at", "updated_at"}

func requestRows(id int64, qty int, itemID interface{}, status models.Status) *sqlmock.Rows {
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(requestColumns).
		AddRow(id, 1, "Pencils", "supplies", qty, "", itemID, string(status), now, now)
}

func TestTransitionRequest_FulfilDrawsDownStock(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM resource_requests WHERE id = $1 FOR UPDATE")).WithArgs(12).
		WillReturnRows(requestRows(12, 3, 7, models.StatusPending))
	mock.ExpectQuery(q("FROM inventory_items WHERE id = $1 FOR UPDATE")).WithArgs(7).
		WillReturnRows(itemRows(7, 5, false))
	mock.ExpectQuery(q("UPDATE inventory_items")).
		WithArgs(-3, sqlmock.AnyArg(), sqlmock.AnyArg(), 7).
		WillReturnRows(itemRows(7, 2, false))
	mock.ExpectQuery(q("INSERT INTO inventory_movements")).
		WithArgs(7, 3, models.MovementTypeFulfillment, -3, 2, sqlmock.AnyArg(), 12, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectQuery(q("UPDATE resource_requests SET status = $1")).
		WithArgs(models.StatusFulfilled, sqlmock.AnyArg(), 12).
		WillReturnRows(requestRows(12, 3, 7, models.StatusFulfilled))
	mock.ExpectCommit()

	req, applied, err := repo.TransitionRequest(context.Background(), 12, Transition{
		Action: models.ActionFulfill, To: models.StatusFulfilled, PrincipalID: 3,
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.StatusFulfilled, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRequest_ShortStockRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM resource_requests WHERE id = $1 FOR UPDATE")).WithArgs(12).
		WillReturnRows(requestRows(12, 8, 7, models.StatusPending))
	mock.ExpectQuery(q("FROM inventory_items WHERE id = $1 FOR UPDATE")).WithArgs(7).
		WillReturnRows(itemRows(7, 5, false))
	mock.ExpectRollback()

	_, applied, err := repo.TransitionRequest(context.Background(), 12, Transition{
		Action: models.ActionFulfill, To: models.StatusFulfilled, PrincipalID: 3,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRequest_TerminalStates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)
	reject := Transition{Action: models.ActionReject, To: models.StatusRejected, PrincipalID: 3}

	// Same target: unchanged, committed without writes.
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(12).WillReturnRows(requestRows(12, 3, nil, models.StatusRejected))
	mock.ExpectCommit()

	req, applied, err := repo.TransitionRequest(context.Background(), 12, reject)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, models.StatusRejected, req.Status)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(12).WillReturnRows(requestRows(12, 3, 7, models.StatusFulfilled))
	mock.ExpectRollback()

	_, _, err = repo.TransitionRequest(context.Background(), 12, reject)
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_MatchesItemByName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE lower(name) = lower($1) AND retired = FALSE")).WithArgs("pencils").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(q("INSERT INTO resource_requests")).
		WithArgs(1, "pencils", "supplies", 2, "", int64(7), models.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(40, now, now))
	mock.ExpectCommit()

	req, err := repo.CreateRequest(context.Background(), &models.ResourceRequest{
		RequesterID: 1, ResourceName: "pencils", ResourceType: "supplies", Quantity: 2,
	})
	require.NoError(t, err)
	require.Equal(t, int64(40), req.ID)
	require.NotNil(t, req.InventoryItemID)
	require.Equal(t, int64(7), *req.InventoryItemID)
	require.Equal(t, models.StatusPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_RetiredLink(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)
	itemID := int64(7)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT retired FROM inventory_items WHERE id = $1 FOR SHARE")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"retired"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.CreateRequest(context.Background(), &models.ResourceRequest{
		RequesterID: 1, ResourceName: "Pencils", ResourceType: "supplies", Quantity: 2, InventoryItemID: &itemID,
	})
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

var borrowColumns = []string{"id", "book_id", "borrower_name", "borrower_type", "issued_by",
	"borrowed_date", "due_date", "returned", "returned_date", "status",
	"b_id", "title", "author", "isbn", "category", "total_copies", "added_date", "available_copies"}

func borrowRows(id int64, status models.Status, total, available int) *sqlmock.Rows {
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	var returnedDate interface{}
	if status == models.StatusReturned {
		returnedDate = now
	}
	return sqlmock.NewRows(borrowColumns).AddRow(
		id, 4, "Ana", models.BorrowerStudent, 4,
		now, now.AddDate(0, 0, 14), status == models.StatusReturned, returnedDate, string(status),
		4, "Dune", "Herbert", "978-0441013593", models.BookCategoryFiction, total, now, available,
	)
}

func TestTransitionLoan_Return(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLibraryRepository(db)
	returnLoan := Transition{Action: models.ActionReturn, To: models.StatusReturned, PrincipalID: 4}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status, book_id FROM borrow_records WHERE id = $1 FOR UPDATE")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"status", "book_id"}).AddRow("pending", 4))
	mock.ExpectQuery(q("SELECT total_copies FROM books WHERE id = $1 FOR UPDATE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"total_copies"}).AddRow(2))
	mock.ExpectExec(q("UPDATE borrow_records SET returned = TRUE")).
		WithArgs(sqlmock.AnyArg(), models.StatusReturned, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM borrow_records br JOIN books b")).WithArgs(9).
		WillReturnRows(borrowRows(9, models.StatusReturned, 2, 2))
	mock.ExpectCommit()

	rec, applied, err := repo.TransitionLoan(context.Background(), 9, returnLoan)
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, rec.Returned)
	require.NotNil(t, rec.ReturnedDate)

	// A second return reports ErrAlreadyReturned together with the record.
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status, book_id FROM borrow_records")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"status", "book_id"}).AddRow("returned", 4))
	mock.ExpectQuery(q("FROM borrow_records br JOIN books b")).WithArgs(9).
		WillReturnRows(borrowRows(9, models.StatusReturned, 2, 2))
	mock.ExpectRollback()

	rec, applied, err = repo.TransitionLoan(context.Background(), 9, returnLoan)
	require.ErrorIs(t, err, ErrAlreadyReturned)
	require.False(t, applied)
	require.NotNil(t, rec)
	require.Equal(t, models.StatusReturned, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLoan_LostAfterReturn(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status, book_id FROM borrow_records")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"status", "book_id"}).AddRow("returned", 4))
	mock.ExpectQuery(q("FROM borrow_records br JOIN books b")).WithArgs(9).
		WillReturnRows(borrowRows(9, models.StatusReturned, 2, 2))
	mock.ExpectRollback()

	_, _, err := repo.TransitionLoan(context.Background(), 9, Transition{Action: models.ActionReject, To: models.StatusRejected})
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLoan_LostWritesOffCopy(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status, book_id FROM borrow_records")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"status", "book_id"}).AddRow("pending", 4))
	mock.ExpectQuery(q("SELECT total_copies FROM books WHERE id = $1 FOR UPDATE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"total_copies"}).AddRow(3))
	mock.ExpectExec(q("UPDATE books SET total_copies = total_copies - 1 WHERE id = $1")).WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE borrow_records SET status = $1 WHERE id = $2")).WithArgs(models.StatusRejected, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM borrow_records br JOIN books b")).WithArgs(9).
		WillReturnRows(borrowRows(9, models.StatusRejected, 2, 2))
	mock.ExpectCommit()

	rec, applied, err := repo.TransitionLoan(context.Background(), 9, Transition{Action: models.ActionReject, To: models.StatusRejected})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 2, rec.Book.TotalCopies)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLoan_LastCopyNotWrittenOff(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status, book_id FROM borrow_records")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"status", "book_id"}).AddRow("pending", 4))
	mock.ExpectQuery(q("SELECT total_copies FROM books WHERE id = $1 FOR UPDATE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"total_copies"}).AddRow(1))
	mock.ExpectRollback()

	_, applied, err := repo.TransitionLoan(context.Background(), 9, Transition{Action: models.ActionReject, To: models.StatusRejected})
	require.ErrorIs(t, err, ErrInvalidState)
	require.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

var bookingColumns = []string{"id", "teacher_id", "lab_number", "date", "start_minute", "end_minute",
	"requirements", "notes", "status", "created_at", "updated_at"}

func bookingRows(id int64, status models.Status) *sqlmock.Rows {
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(bookingColumns).
		AddRow(id, 1, "L1", "2024-01-10", 540, 600, "", "", string(status), now, now)
}

func TestTransitionBooking_ApproveLocksSlot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLabBookingRepository(db)
	approve := Transition{Action: models.ActionApprove, To: models.StatusApproved, PrincipalID: 5}

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM lab_bookings WHERE id = $1 FOR UPDATE")).WithArgs(21).
		WillReturnRows(bookingRows(21, models.StatusPending))
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).WithArgs("L1|2024-01-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("UPDATE lab_bookings SET status = $1")).
		WithArgs(models.StatusApproved, sqlmock.AnyArg(), 21).
		WillReturnRows(bookingRows(21, models.StatusApproved))
	mock.ExpectCommit()

	booking, applied, err := repo.TransitionBooking(context.Background(), 21, approve)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.StatusApproved, booking.Status)
	require.Equal(t, models.ClockTime(540), booking.StartTime)

	// Approving again changes nothing and takes no slot lock.
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(21).WillReturnRows(bookingRows(21, models.StatusApproved))
	mock.ExpectCommit()

	_, applied, err = repo.TransitionBooking(context.Background(), 21, approve)
	require.NoError(t, err)
	require.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionBooking_TerminalRefused(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLabBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WithArgs(21).WillReturnRows(bookingRows(21, models.StatusCancelled))
	mock.ExpectRollback()

	_, applied, err := repo.TransitionBooking(context.Background(), 21, Transition{Action: models.ActionApprove, To: models.StatusApproved})
	require.ErrorIs(t, err, ErrInvalidState)
	require.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}
