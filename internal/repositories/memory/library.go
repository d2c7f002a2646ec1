package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

func bookKey(id int64) string { return "book:" + utils.Int64ToStr(id) }
func loanKey(id int64) string { return "loan:" + utils.Int64ToStr(id) }

// withAvailability must be called with mu held.
func (s *Store) withAvailability(book models.Book) models.Book {
	open := 0
	for _, rec := range s.loans {
		if rec.BookID == book.ID && rec.Status == models.StatusPending {
			open++
		}
	}
	book.AvailableCopies = book.TotalCopies - open
	return book
}

func (s *Store) CreateBook(ctx context.Context, book *models.Book) (*models.Book, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	created := *book
	var duplicate bool
	s.write(func() {
		for _, existing := range s.books {
			if existing.ISBN == created.ISBN {
				duplicate = true
				return
			}
		}
		created.ID = s.nextID()
		created.AddedDate = s.nowFn()
		created.AvailableCopies = created.TotalCopies
		s.books[created.ID] = created
	})
	if duplicate {
		return nil, fmt.Errorf("%w: book with isbn %q already exists", repositories.ErrConflict, created.ISBN)
	}
	return &created, nil
}

func (s *Store) GetBookByID(_ context.Context, id int64) (*models.Book, error) {
	var (
		book models.Book
		ok   bool
	)
	s.read(func() {
		book, ok = s.books[id]
		if ok {
			book = s.withAvailability(book)
		}
	})
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &book, nil
}

func (s *Store) GetBooks(_ context.Context, filters models.BookFilters) ([]models.Book, int, error) {
	matched := []models.Book{}
	s.read(func() {
		for _, book := range s.books {
			if filters.Category != nil && *filters.Category != "" && book.Category != *filters.Category {
				continue
			}
			matched = append(matched, s.withAvailability(book))
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Title != matched[j].Title {
			return matched[i].Title < matched[j].Title
		}
		return matched[i].ID < matched[j].ID
	})
	return page(matched, filters.Page, filters.PageSize), len(matched), nil
}

func (s *Store) Borrow(ctx context.Context, record *models.BorrowRecord) (*models.BorrowRecord, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(bookKey(record.BookID))
	defer unlock()

	created := *record
	var (
		book       models.Book
		ok         bool
		outOfStock bool
	)
	s.write(func() {
		book, ok = s.books[created.BookID]
		if !ok {
			return
		}
		book = s.withAvailability(book)
		if book.AvailableCopies <= 0 {
			outOfStock = true
			return
		}
		created.ID = s.nextID()
		created.BorrowedDate = s.nowFn()
		created.Returned = false
		created.ReturnedDate = nil
		created.Status = models.StatusPending
		s.loans[created.ID] = created
		book.AvailableCopies--
	})
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if outOfStock {
		return nil, fmt.Errorf("%w: book %d has all %d copies out", repositories.ErrOutOfStock, book.ID, book.TotalCopies)
	}
	created.Book = &book
	return &created, nil
}

func (s *Store) GetBorrowRecordByID(_ context.Context, id int64) (*models.BorrowRecord, error) {
	var (
		rec models.BorrowRecord
		ok  bool
	)
	s.read(func() {
		rec, ok = s.loans[id]
		if ok {
			rec = s.attachBook(rec)
		}
	})
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &rec, nil
}

// attachBook must be called with mu held.
func (s *Store) attachBook(rec models.BorrowRecord) models.BorrowRecord {
	if book, ok := s.books[rec.BookID]; ok {
		withAvail := s.withAvailability(book)
		rec.Book = &withAvail
	}
	return rec
}

func (s *Store) GetBorrowRecords(_ context.Context, filters models.BorrowRecordFilters) ([]models.BorrowRecord, int, error) {
	matched := []models.BorrowRecord{}
	s.read(func() {
		for _, rec := range s.loans {
			if filters.BookID != nil && rec.BookID != *filters.BookID {
				continue
			}
			if filters.BorrowerName != nil && *filters.BorrowerName != "" &&
				!strings.Contains(strings.ToLower(rec.Borrower.Name), strings.ToLower(*filters.BorrowerName)) {
				continue
			}
			if filters.Status != nil && *filters.Status != "" && string(rec.Status) != *filters.Status {
				continue
			}
			if filters.Returned != nil && rec.Returned != *filters.Returned {
				continue
			}
			if filters.OverdueAt != nil && !rec.IsOverdue(*filters.OverdueAt) {
				continue
			}
			matched = append(matched, s.attachBook(rec))
		}
	})
	sortByIDDesc(matched, func(r models.BorrowRecord) int64 { return r.ID })
	return page(matched, filters.Page, filters.PageSize), len(matched), nil
}

func (s *Store) TransitionLoan(ctx context.Context, id int64, t repositories.Transition) (*models.BorrowRecord, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, false, err
	}
	unlockLoan := s.locks.lock(loanKey(id))
	defer unlockLoan()

	current, err := s.GetBorrowRecordByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	switch {
	case current.Status == models.StatusReturned && t.To == models.StatusReturned:
		return current, false, repositories.ErrAlreadyReturned
	case current.Status == t.To:
		return current, false, nil
	case current.Status != models.StatusPending:
		return nil, false, fmt.Errorf("%w: loan %d is %s", repositories.ErrInvalidState, id, current.Status)
	case t.To != models.StatusReturned && t.To != models.StatusRejected:
		return nil, false, fmt.Errorf("%w: loan cannot move to %s", repositories.ErrInvalidState, t.To)
	}

	unlockBook := s.locks.lock(bookKey(current.BookID))
	defer unlockBook()

	if t.To == models.StatusRejected {
		var total int
		s.read(func() { total = s.books[current.BookID].TotalCopies })
		if total <= 1 {
			return nil, false, fmt.Errorf("%w: book %d has no copy left to write off", repositories.ErrInvalidState, current.BookID)
		}
	}

	var updated models.BorrowRecord
	s.write(func() {
		now := s.nowFn()
		rec := s.loans[id]
		rec.Status = t.To
		if t.To == models.StatusReturned {
			rec.Returned = true
			rec.ReturnedDate = &now
		} else {
			book := s.books[rec.BookID]
			book.TotalCopies--
			s.books[rec.BookID] = book
		}
		s.loans[id] = rec
		updated = s.attachBook(rec)
	})
	return &updated, true, nil
}
