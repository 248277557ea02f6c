package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openshelf/library-api/internal/model"
	"github.com/openshelf/library-api/internal/repository"
)

// BookHandler serves the catalogue: public reads plus admin CRUD.
type BookHandler struct {
	Books *repository.BookRepo
}

func NewBookHandler(books *repository.BookRepo) *BookHandler {
	if books == nil {
		panic("nil repository passed to NewBookHandler")
	}
	return &BookHandler{Books: books}
}

type bookReq struct {
	ISBN            *string `json:"isbn"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Publisher       *string `json:"publisher"`
	PublicationYear *int    `json:"publication_year"`
	Category        *string `json:"category"`
	TotalCopies     int     `json:"total_copies"`
	AvailableCopies *int    `json:"available_copies"`
	Description     *string `json:"description"`
}

type bookResp struct {
	ID              uint64  `json:"id"`
	ISBN            *string `json:"isbn,omitempty"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Publisher       *string `json:"publisher,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	Category        *string `json:"category,omitempty"`
	TotalCopies     int     `json:"total_copies"`
	AvailableCopies int     `json:"available_copies"`
	Description     *string `json:"description,omitempty"`
}

func toBookResp(b *model.Book) bookResp {
	return bookResp{
		ID: b.ID, ISBN: b.ISBN, Title: b.Title, Author: b.Author,
		Publisher: b.Publisher, PublicationYear: b.PublicationYear, Category: b.Category,
		TotalCopies: b.TotalCopies, AvailableCopies: b.AvailableCopies, Description: b.Description,
	}
}

// Create adds a catalogue entry. available_copies defaults to
// total_copies when omitted.
func (h *BookHandler) Create(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Title == "" || req.Author == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title/author required"})
	}
	if req.TotalCopies < 0 || (req.AvailableCopies != nil && (*req.AvailableCopies < 0 || *req.AvailableCopies > req.TotalCopies)) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid copy counts"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.ISBN != nil && *req.ISBN != "" {
		exists, err := h.Books.ExistsByISBN(ctx, *req.ISBN)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		if exists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "isbn already exists"})
		}
	}

	book := model.Book{
		ISBN: req.ISBN, Title: req.Title, Author: req.Author,
		Publisher: req.Publisher, PublicationYear: req.PublicationYear, Category: req.Category,
		TotalCopies: req.TotalCopies, Description: req.Description,
	}
	if req.AvailableCopies != nil {
		book.AvailableCopies = *req.AvailableCopies
	}
	if err := h.Books.Create(ctx, &book); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create book failed"})
	}
	return c.JSON(http.StatusCreated, toBookResp(&book))
}

// List returns the whole catalogue.
func (h *BookHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	books, err := h.Books.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]bookResp, len(books))
	for i := range books {
		out[i] = toBookResp(&books[i])
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns a single book.
func (h *BookHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	book, err := h.Books.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toBookResp(book))
}

// Availability returns the stored counter next to the figure computed
// from open loans so the two can be reconciled.
func (h *BookHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	book, err := h.Books.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	computed, err := h.Books.ComputedAvailable(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"book_id":            book.ID,
		"total_copies":       book.TotalCopies,
		"available_copies":   book.AvailableCopies,
		"computed_available": computed,
	})
}

// Update replaces the catalogue fields of a book. Copy counters are
// managed by circulation, not this endpoint.
func (h *BookHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Title == "" || req.Author == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title/author required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	book := model.Book{
		ID: id, ISBN: req.ISBN, Title: req.Title, Author: req.Author,
		Publisher: req.Publisher, PublicationYear: req.PublicationYear, Category: req.Category,
		Description: req.Description,
	}
	if err := h.Books.Update(ctx, &book); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update book failed"})
	}
	updated, err := h.Books.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toBookResp(updated))
}

// Delete removes a book that has never circulated. Books referenced
// by loans or reservations are kept for the audit trail.
func (h *BookHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	referenced, err := h.Books.HasCirculationRefs(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if referenced {
		return c.JSON(http.StatusConflict, echo.Map{"error": "book has circulation history"})
	}
	if err := h.Books.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete book failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
