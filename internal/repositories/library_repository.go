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

// LibraryRepository defines the Lending Ledger operations.
type LibraryRepository interface {
	CreateBook(ctx context.Context, book *models.Book) (*models.Book, error)
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	GetBooks(ctx context.Context, filters models.BookFilters) ([]models.Book, int, error)
	// Borrow counts open loans and inserts a new one under the book's lock.
	Borrow(ctx context.Context, record *models.BorrowRecord) (*models.BorrowRecord, error)
	GetBorrowRecordByID(ctx context.Context, id int64) (*models.BorrowRecord, error)
	GetBorrowRecords(ctx context.Context, filters models.BorrowRecordFilters) ([]models.BorrowRecord, int, error)
	// TransitionLoan closes an open loan as returned or rejected (lost). A second return
	// yields ErrAlreadyReturned together with the record. The last copy of a book cannot
	// be written off.
	TransitionLoan(ctx context.Context, id int64, t Transition) (*models.BorrowRecord, bool, error)
}

type libraryRepository struct {
	db *sql.DB
}

// NewLibraryRepository creates a new instance of LibraryRepository.
func NewLibraryRepository(db *sql.DB) LibraryRepository {
	return &libraryRepository{db: db}
}

// openLoansSubquery counts the copies of b that are currently out.
const openLoansSubquery = `(SELECT COUNT(*) FROM borrow_records br WHERE br.book_id = b.id AND br.status = 'pending')`

const selectBookFields = `b.id, b.title, b.author, b.isbn, b.category, b.total_copies, b.added_date,
	b.total_copies - ` + openLoansSubquery + ` AS available_copies`

func scanBook(row scanner, extra ...interface{}) (*models.Book, error) {
	var book models.Book
	dest := []interface{}{
		&book.ID, &book.Title, &book.Author, &book.ISBN, &book.Category, &book.TotalCopies,
		&book.AddedDate, &book.AvailableCopies,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning book: %v", ErrDatabaseError, err)
	}
	return &book, nil
}

func (r *libraryRepository) CreateBook(ctx context.Context, book *models.Book) (*models.Book, error) {
	query := `INSERT INTO books (title, author, isbn, category, total_copies, added_date)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, added_date`
	err := r.db.QueryRowContext(ctx, query,
		book.Title, book.Author, book.ISBN, book.Category, book.TotalCopies, time.Now(),
	).Scan(&book.ID, &book.AddedDate)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("creating book with isbn %q", book.ISBN))
	}
	book.AvailableCopies = book.TotalCopies
	return book, nil
}

func (r *libraryRepository) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	query := "SELECT " + selectBookFields + " FROM books b WHERE b.id = $1"
	return scanBook(r.db.QueryRowContext(ctx, query, id))
}

func (r *libraryRepository) GetBooks(ctx context.Context, filters models.BookFilters) ([]models.Book, int, error) {
	books := []models.Book{}
	totalCount := 0

	query := "SELECT " + selectBookFields + ", COUNT(*) OVER() AS total_count FROM books b"
	var args []interface{}
	argCount := 1
	if filters.Category != nil && *filters.Category != "" {
		query += fmt.Sprintf(" WHERE b.category = $%d", argCount)
		args = append(args, *filters.Category)
		argCount++
	}
	query += " ORDER BY b.title, b.id"
	if limit, offset, ok := pageArgs(filters.Page, filters.PageSize); ok {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying books: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		book, scanErr := scanBook(rows, &totalCount)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		books = append(books, *book)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating books: %v", ErrDatabaseError, err)
	}
	return books, totalCount, nil
}

func (r *libraryRepository) Borrow(ctx context.Context, record *models.BorrowRecord) (*models.BorrowRecord, error) {
	err := withTx(ctx, r.db, "borrowing book", func(tx *sql.Tx) error {
		// The open-loan count must be read by a statement that starts after the row lock is held.
		var totalCopies int
		err := tx.QueryRowContext(ctx, "SELECT total_copies FROM books WHERE id = $1 FOR UPDATE", record.BookID).Scan(&totalCopies)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: locking book %d: %v", ErrDatabaseError, record.BookID, err)
		}
		var open int
		err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM borrow_records WHERE book_id = $1 AND status = 'pending'", record.BookID).Scan(&open)
		if err != nil {
			return fmt.Errorf("%w: counting open loans of book %d: %v", ErrDatabaseError, record.BookID, err)
		}
		if totalCopies-open <= 0 {
			return fmt.Errorf("%w: book %d has %d of %d copies out", ErrOutOfStock, record.BookID, open, totalCopies)
		}

		query := `INSERT INTO borrow_records
		            (book_id, borrower_name, borrower_type, issued_by, borrowed_date, due_date, returned, status)
		          VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		          RETURNING id`
		record.BorrowedDate = time.Now()
		record.Returned = false
		record.Status = models.StatusPending
		err = tx.QueryRowContext(ctx, query,
			record.BookID, record.Borrower.Name, record.Borrower.Type, record.IssuedBy,
			record.BorrowedDate, record.DueDate, record.Status,
		).Scan(&record.ID)
		if err != nil {
			return mapDBError(err, "inserting borrow record")
		}

		record.Book, err = scanBook(tx.QueryRowContext(ctx, "SELECT "+selectBookFields+" FROM books b WHERE b.id = $1", record.BookID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

const selectBorrowFields = `br.id, br.book_id, br.borrower_name, br.borrower_type, br.issued_by,
	br.borrowed_date, br.due_date, br.returned, br.returned_date, br.status,
	b.id, b.title, b.author, b.isbn, b.category, b.total_copies, b.added_date,
	b.total_copies - ` + openLoansSubquery + ` AS available_copies`

const borrowJoins = ` FROM borrow_records br JOIN books b ON br.book_id = b.id`

func scanBorrowRecord(row scanner, extra ...interface{}) (*models.BorrowRecord, error) {
	var record models.BorrowRecord
	var book models.Book
	var returnedDate sql.NullTime

	dest := []interface{}{
		&record.ID, &record.BookID, &record.Borrower.Name, &record.Borrower.Type, &record.IssuedBy,
		&record.BorrowedDate, &record.DueDate, &record.Returned, &returnedDate, &record.Status,
		&book.ID, &book.Title, &book.Author, &book.ISBN, &book.Category, &book.TotalCopies,
		&book.AddedDate, &book.AvailableCopies,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning borrow record: %v", ErrDatabaseError, err)
	}
	if returnedDate.Valid {
		record.ReturnedDate = &returnedDate.Time
	}
	record.Book = &book
	return &record, nil
}

func (r *libraryRepository) GetBorrowRecordByID(ctx context.Context, id int64) (*models.BorrowRecord, error) {
	query := "SELECT " + selectBorrowFields + borrowJoins + " WHERE br.id = $1"
	return scanBorrowRecord(r.db.QueryRowContext(ctx, query, id))
}

func (r *libraryRepository) GetBorrowRecords(ctx context.Context, filters models.BorrowRecordFilters) ([]models.BorrowRecord, int, error) {
	records := []models.BorrowRecord{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + selectBorrowFields + ", COUNT(*) OVER() AS total_count" + borrowJoins)

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.BookID != nil {
		conditions = append(conditions, fmt.Sprintf("br.book_id = $%d", argCount))
		args = append(args, *filters.BookID)
		argCount++
	}
	if filters.BorrowerName != nil && *filters.BorrowerName != "" {
		conditions = append(conditions, fmt.Sprintf("br.borrower_name ILIKE $%d", argCount))
		args = append(args, "%"+*filters.BorrowerName+"%")
		argCount++
	}
	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("br.status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}
	if filters.Returned != nil {
		conditions = append(conditions, fmt.Sprintf("br.returned = $%d", argCount))
		args = append(args, *filters.Returned)
		argCount++
	}
	if filters.OverdueAt != nil {
		conditions = append(conditions, fmt.Sprintf("br.status = 'pending' AND br.due_date + INTERVAL '1 day' < $%d", argCount))
		args = append(args, *filters.OverdueAt)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY br.borrowed_date DESC, br.id DESC")

	if limit, offset, ok := pageArgs(filters.Page, filters.PageSize); ok {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying borrow records: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		record, scanErr := scanBorrowRecord(rows, &totalCount)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		records = append(records, *record)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating borrow records: %v", ErrDatabaseError, err)
	}
	return records, totalCount, nil
}

func (r *libraryRepository) TransitionLoan(ctx context.Context, id int64, t Transition) (*models.BorrowRecord, bool, error) {
	var result *models.BorrowRecord
	applied := false

	err := withTx(ctx, r.db, "transitioning loan", func(tx *sql.Tx) error {
		var status models.Status
		var bookID int64
		err := tx.QueryRowContext(ctx, "SELECT status, book_id FROM borrow_records WHERE id = $1 FOR UPDATE", id).Scan(&status, &bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: locking borrow record %d: %v", ErrDatabaseError, id, err)
		}

		if status == t.To || status != models.StatusPending {
			result, err = scanBorrowRecord(tx.QueryRowContext(ctx, "SELECT "+selectBorrowFields+borrowJoins+" WHERE br.id = $1", id))
			if err != nil {
				return err
			}
			switch {
			case status == models.StatusReturned && t.To == models.StatusReturned:
				return ErrAlreadyReturned
			case status == t.To:
				return nil
			default:
				return fmt.Errorf("%w: loan %d is %s", ErrInvalidState, id, status)
			}
		}

		var totalCopies int
		if err := tx.QueryRowContext(ctx, "SELECT total_copies FROM books WHERE id = $1 FOR UPDATE", bookID).Scan(&totalCopies); err != nil {
			return fmt.Errorf("%w: locking book %d: %v", ErrDatabaseError, bookID, err)
		}

		now := time.Now()
		switch t.To {
		case models.StatusReturned:
			_, err = tx.ExecContext(ctx,
				"UPDATE borrow_records SET returned = TRUE, returned_date = $1, status = $2 WHERE id = $3",
				now, t.To, id)
		case models.StatusRejected:
			if totalCopies <= 1 {
				return fmt.Errorf("%w: book %d has no copy left to write off", ErrInvalidState, bookID)
			}
			if _, err = tx.ExecContext(ctx, "UPDATE books SET total_copies = total_copies - 1 WHERE id = $1", bookID); err != nil {
				return fmt.Errorf("%w: writing off copy of book %d: %v", ErrDatabaseError, bookID, err)
			}
			_, err = tx.ExecContext(ctx, "UPDATE borrow_records SET status = $1 WHERE id = $2", t.To, id)
		default:
			return fmt.Errorf("%w: loan cannot move to %s", ErrInvalidState, t.To)
		}
		if err != nil {
			return fmt.Errorf("%w: updating borrow record %d: %v", ErrDatabaseError, id, err)
		}

		result, err = scanBorrowRecord(tx.QueryRowContext(ctx, "SELECT "+selectBorrowFields+borrowJoins+" WHERE br.id = $1", id))
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, ErrAlreadyReturned) {
		return result, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}
