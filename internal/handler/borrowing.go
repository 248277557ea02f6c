package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openshelf/library-api/internal/config"
	"github.com/openshelf/library-api/internal/service"
)

// BorrowingHandler exposes checkout, return and loan queries.
type BorrowingHandler struct {
	Cfg config.Config
	Svc *service.BorrowingService
}

func NewBorrowingHandler(cfg config.Config, svc *service.BorrowingService) *BorrowingHandler {
	if svc == nil {
		panic("nil service passed to NewBorrowingHandler")
	}
	return &BorrowingHandler{Cfg: cfg, Svc: svc}
}

type checkOutReq struct {
	BookID   uint64 `json:"book_id"`
	LoanDays *int   `json:"loan_days"`
}

type returnReq struct {
	ReturnDate string `json:"return_date"` // optional, YYYY-MM-DD
}

type loanResp struct {
	ID         uint64  `json:"id"`
	BookID     uint64  `json:"book_id"`
	UserID     uint64  `json:"user_id"`
	BorrowDate string  `json:"borrow_date"`
	DueDate    string  `json:"due_date"`
	ReturnDate *string `json:"return_date,omitempty"`
	Status     string  `json:"status"`
	DaysLate   int     `json:"days_late"`
	FineAmount float64 `json:"fine_amount"`
}

func toLoanResp(v *service.LoanView) loanResp {
	out := loanResp{
		ID: v.Record.ID, BookID: v.Record.BookID, UserID: v.Record.UserID,
		BorrowDate: v.Record.BorrowDate.Format(dateLayout),
		DueDate:    v.Record.DueDate.Format(dateLayout),
		Status:     v.Status, DaysLate: v.DaysLate, FineAmount: v.FineAmount,
	}
	if v.Record.ReturnDate != nil {
		s := v.Record.ReturnDate.Format(dateLayout)
		out.ReturnDate = &s
	}
	return out
}

func toLoanResps(views []service.LoanView) []loanResp {
	out := make([]loanResp, len(views))
	for i := range views {
		out[i] = toLoanResp(&views[i])
	}
	return out
}

// CheckOut lends a copy of the requested book to the authenticated
// member. loan_days falls back to the configured default.
func (h *BorrowingHandler) CheckOut(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req checkOutReq
	if err := c.Bind(&req); err != nil || req.BookID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "book_id required"})
	}
	days := h.Cfg.LoanDays
	if req.LoanDays != nil {
		days = *req.LoanDays
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	view, err := h.Svc.CheckOut(ctx, req.BookID, userID, days)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toLoanResp(view))
}

// Return closes the member's loan. Repeating the call is harmless.
func (h *BorrowingHandler) Return(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record id"})
	}
	var req returnReq
	_ = c.Bind(&req) // empty body means "returned today"
	var returnedOn *time.Time
	if req.ReturnDate != "" {
		d, err := time.ParseInLocation(dateLayout, req.ReturnDate, time.UTC)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid return_date"})
		}
		returnedOn = &d
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	view, err := h.Svc.Return(ctx, id, returnedOn)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResp(view))
}

// Get returns one loan with its derived status and fine.
func (h *BorrowingHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid record id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	view, err := h.Svc.Get(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResp(view))
}

// ListAll returns every borrowing record (admin).
func (h *BorrowingHandler) ListAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	views, err := h.Svc.ListAll(ctx)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResps(views))
}

// MyActive returns the authenticated member's open loans.
func (h *BorrowingHandler) MyActive(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	views, err := h.Svc.ActiveByUser(ctx, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResps(views))
}

// ActiveByUser returns a member's open loans (admin).
func (h *BorrowingHandler) ActiveByUser(c echo.Context) error {
	userID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	views, err := h.Svc.ActiveByUser(ctx, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResps(views))
}

// ActiveByBook returns a book's open loans (admin).
func (h *BorrowingHandler) ActiveByBook(c echo.Context) error {
	bookID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	views, err := h.Svc.ActiveByBook(ctx, bookID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResps(views))
}
