package handlers

import (
	"net/http"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// LibraryHandler holds the library service.
type LibraryHandler struct {
	libraryService services.LibraryService
}

// NewLibraryHandler creates a new LibraryHandler.
func NewLibraryHandler(ls services.LibraryService) *LibraryHandler {
	return &LibraryHandler{libraryService: ls}
}

func (h *LibraryHandler) AddBook(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.CreateBookRequest
	if !bindJSON(c, "AddBook", &req) {
		return
	}

	book, err := h.libraryService.AddBook(c.Request.Context(), p, req)
	if err != nil {
		respondServiceError(c, "AddBook", err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) GetBooks(c *gin.Context) {
	var filters models.BookFilters
	if !bindQuery(c, &filters) {
		return
	}
	normalizePage(&filters.Page, &filters.PageSize)

	books, total, err := h.libraryService.GetBooks(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "GetBooks", err)
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	respondPage(c, books, total, filters.Page, filters.PageSize)
}

func (h *LibraryHandler) GetBookByID(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}
	book, err := h.libraryService.GetBookByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "GetBookByID", err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// BorrowBook opens a loan when a copy is available.
func (h *LibraryHandler) BorrowBook(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.BorrowBookRequest
	if !bindJSON(c, "BorrowBook", &req) {
		return
	}

	record, err := h.libraryService.Borrow(c.Request.Context(), p, req)
	if err != nil {
		respondServiceError(c, "BorrowBook", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *LibraryHandler) GetBorrowRecords(c *gin.Context) {
	var filters models.BorrowRecordFilters
	if !bindQuery(c, &filters) {
		return
	}
	normalizePage(&filters.Page, &filters.PageSize)

	records, total, err := h.libraryService.GetBorrowRecords(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "GetBorrowRecords", err)
		return
	}
	if records == nil {
		records = []models.BorrowRecord{}
	}
	respondPage(c, records, total, filters.Page, filters.PageSize)
}

func (h *LibraryHandler) GetActiveBorrows(c *gin.Context) {
	records, err := h.libraryService.GetActiveBorrows(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetActiveBorrows", err)
		return
	}
	if records == nil {
		records = []models.BorrowRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *LibraryHandler) GetOverdueBorrows(c *gin.Context) {
	records, err := h.libraryService.GetOverdueBorrows(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetOverdueBorrows", err)
		return
	}
	if records == nil {
		records = []models.BorrowRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// ReturnBook closes a loan. Returning twice answers 200 with the unchanged record.
func (h *LibraryHandler) ReturnBook(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "borrow record")
	if !ok {
		return
	}

	record, err := h.libraryService.Return(c.Request.Context(), p, id)
	if err != nil {
		respondServiceError(c, "ReturnBook", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *LibraryHandler) MarkLost(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "borrow record")
	if !ok {
		return
	}

	record, err := h.libraryService.MarkLost(c.Request.Context(), p, id)
	if err != nil {
		respondServiceError(c, "MarkLost", err)
		return
	}
	c.JSON(http.StatusOK, record)
}
