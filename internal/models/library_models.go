package models

import "time"

// Book categories.
const (
	BookCategoryGeneral    = "general"
	BookCategoryFiction    = "fiction"
	BookCategoryNonFiction = "non-fiction"
	BookCategoryScience    = "science"
	BookCategoryHistory    = "history"
	BookCategoryReference  = "reference"
)

// IsValidBookCategory checks the category against the known set.
func IsValidBookCategory(c string) bool {
	switch c {
	case BookCategoryGeneral, BookCategoryFiction, BookCategoryNonFiction,
		BookCategoryScience, BookCategoryHistory, BookCategoryReference:
		return true
	}
	return false
}

// Book is a library title with a fixed number of physical copies.
// AvailableCopies is derived from the open borrow records on every read.
type Book struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Category        string    `json:"category" db:"category"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"-"`
	AddedDate       time.Time `json:"added_date" db:"added_date"`
}

// Borrower types.
const (
	BorrowerStudent = "student"
	BorrowerTeacher = "teacher"
)

// Borrower names who holds a copy. Borrowers are not principals.
type Borrower struct {
	Name string `json:"borrower_name" db:"borrower_name"`
	Type string `json:"borrower_type" db:"borrower_type"`
}

// BorrowRecord is one loan of one copy of a book.
// Status is pending while the copy is out.
type BorrowRecord struct {
	ID           int64      `json:"id" db:"id"`
	BookID       int64      `json:"book_id" db:"book_id"`
	Borrower                // inlined borrower_name / borrower_type
	IssuedBy     int64      `json:"issued_by" db:"issued_by"`
	BorrowedDate time.Time  `json:"borrowed_date" db:"borrowed_date"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	Returned     bool       `json:"returned" db:"returned"`
	ReturnedDate *time.Time `json:"returned_date,omitempty" db:"returned_date"`
	Status       Status     `json:"status" db:"status"`
	Book         *Book      `json:"book,omitempty"`
}

func (r BorrowRecord) LifecycleStatus() Status { return r.Status }
func (r BorrowRecord) OwnerID() int64          { return r.IssuedBy }

// IsOverdue reports whether an open loan is past its due date at now.
func (r BorrowRecord) IsOverdue(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.DueDate.AddDate(0, 0, 1))
}

// BookFilters defines the available filters for querying books.
type BookFilters struct {
	Category *string `form:"category"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// BorrowRecordFilters defines the available filters for querying borrow records.
type BorrowRecordFilters struct {
	BookID       *int64     `form:"book_id"`
	BorrowerName *string    `form:"borrower_name"`
	Status       *string    `form:"status"`
	Returned     *bool      `form:"returned"`
	OverdueAt    *time.Time `form:"-"`
	Page         int        `form:"page"`
	PageSize     int        `form:"page_size"`
}
