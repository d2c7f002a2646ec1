package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

var librarians = models.NewRoleSet(models.RoleLibrarian, models.RoleAdmin)

// --- Library DTOs ---
type CreateBookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	ISBN        string `json:"isbn" binding:"required"`
	Category    string `json:"category"`
	TotalCopies int    `json:"total_copies" binding:"required"`
}

type BorrowBookRequest struct {
	BookID       int64  `json:"book_id" binding:"required"`
	BorrowerName string `json:"borrower_name" binding:"required"`
	BorrowerType string `json:"borrower_type"`
	DueDate      string `json:"due_date" binding:"required"` // YYYY-MM-DD
}

// LibraryService is the Lending Ledger's entry point.
type LibraryService interface {
	AddBook(ctx context.Context, p models.Principal, req CreateBookRequest) (*models.Book, error)
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	GetBooks(ctx context.Context, filters models.BookFilters) ([]models.Book, int, error)
	Borrow(ctx context.Context, p models.Principal, req BorrowBookRequest) (*models.BorrowRecord, error)
	GetBorrowRecords(ctx context.Context, filters models.BorrowRecordFilters) ([]models.BorrowRecord, int, error)
	GetActiveBorrows(ctx context.Context) ([]models.BorrowRecord, error)
	GetOverdueBorrows(ctx context.Context) ([]models.BorrowRecord, error)
	Return(ctx context.Context, p models.Principal, recordID int64) (*models.BorrowRecord, error)
	MarkLost(ctx context.Context, p models.Principal, recordID int64) (*models.BorrowRecord, error)
}

type libraryService struct {
	repo    repositories.LibraryRepository
	gate    Gate
	metrics *Metrics
	machine *Machine[*models.BorrowRecord]
	now     func() time.Time
}

// NewLibraryService creates a new instance of LibraryService.
func NewLibraryService(repo repositories.LibraryRepository, gate Gate, metrics *Metrics, now func() time.Time) LibraryService {
	if now == nil {
		now = time.Now
	}
	s := &libraryService{repo: repo, gate: gate, metrics: metrics, now: now}
	s.machine = NewMachine(MachineConfig[*models.BorrowRecord]{
		Kind: models.KindLoan,
		Rules: map[models.Action]Rule{
			models.ActionReturn: {To: models.StatusReturned, Allowed: librarians},
			models.ActionReject: {To: models.StatusRejected, Allowed: librarians},
		},
		Get:    repo.GetBorrowRecordByID,
		Commit: repo.TransitionLoan,
	}, gate, metrics)
	return s
}

func (s *libraryService) AddBook(ctx context.Context, p models.Principal, req CreateBookRequest) (book *models.Book, err error) {
	if _, err := authorize(ctx, s.gate, p, librarians, "add books"); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.Title) || utils.IsEmpty(req.Author) || utils.IsEmpty(req.ISBN) {
		return nil, fmt.Errorf("%w: title, author and isbn are required", ErrValidation)
	}
	if req.TotalCopies < 1 {
		return nil, fmt.Errorf("%w: total_copies must be at least 1", ErrValidation)
	}
	category := req.Category
	if category == "" {
		category = models.BookCategoryGeneral
	}
	if !models.IsValidBookCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}

	done := s.metrics.track("library.add_book")
	defer func() { done(err) }()

	book, err = s.repo.CreateBook(ctx, &models.Book{
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		ISBN:        strings.TrimSpace(req.ISBN),
		Category:    category,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add book: %w", err)
	}
	return book, nil
}

func (s *libraryService) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	return s.repo.GetBookByID(ctx, id)
}

func (s *libraryService) GetBooks(ctx context.Context, filters models.BookFilters) ([]models.Book, int, error) {
	return s.repo.GetBooks(ctx, filters)
}

func (s *libraryService) Borrow(ctx context.Context, p models.Principal, req BorrowBookRequest) (record *models.BorrowRecord, err error) {
	if _, err := authorize(ctx, s.gate, p, librarians, "lend books"); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.BorrowerName) {
		return nil, fmt.Errorf("%w: borrower_name is required", ErrValidation)
	}
	borrowerType := req.BorrowerType
	if borrowerType == "" {
		borrowerType = models.BorrowerStudent
	}
	if borrowerType != models.BorrowerStudent && borrowerType != models.BorrowerTeacher {
		return nil, fmt.Errorf("%w: borrower_type must be %q or %q", ErrValidation, models.BorrowerStudent, models.BorrowerTeacher)
	}
	now := s.now()
	due, err := time.ParseInLocation(models.DateLayout, req.DueDate, now.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD", ErrValidation)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if due.Before(today) {
		return nil, fmt.Errorf("%w: due_date cannot be in the past", ErrValidation)
	}

	done := s.metrics.track("library.borrow")
	defer func() { done(err) }()

	record, err = s.repo.Borrow(ctx, &models.BorrowRecord{
		BookID:   req.BookID,
		Borrower: models.Borrower{Name: strings.TrimSpace(req.BorrowerName), Type: borrowerType},
		IssuedBy: p.ID,
		DueDate:  due,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lend book %d: %w", req.BookID, err)
	}
	return record, nil
}

func (s *libraryService) GetBorrowRecords(ctx context.Context, filters models.BorrowRecordFilters) ([]models.BorrowRecord, int, error) {
	return s.repo.GetBorrowRecords(ctx, filters)
}

func (s *libraryService) GetActiveBorrows(ctx context.Context) ([]models.BorrowRecord, error) {
	open := string(models.StatusPending)
	records, _, err := s.repo.GetBorrowRecords(ctx, models.BorrowRecordFilters{Status: &open})
	return records, err
}

func (s *libraryService) GetOverdueBorrows(ctx context.Context) ([]models.BorrowRecord, error) {
	now := s.now()
	records, _, err := s.repo.GetBorrowRecords(ctx, models.BorrowRecordFilters{OverdueAt: &now})
	return records, err
}

func (s *libraryService) Return(ctx context.Context, p models.Principal, recordID int64) (*models.BorrowRecord, error) {
	return s.machine.Transition(ctx, recordID, models.ActionReturn, p)
}

// MarkLost closes an open loan whose copy will not come back and writes the copy off.
func (s *libraryService) MarkLost(ctx context.Context, p models.Principal, recordID int64) (*models.BorrowRecord, error) {
	return s.machine.Transition(ctx, recordID, models.ActionReject, p)
}
