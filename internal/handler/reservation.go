package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openshelf/library-api/internal/config"
	"github.com/openshelf/library-api/internal/model"
	"github.com/openshelf/library-api/internal/service"
)

// ReservationHandler exposes the reservation queue endpoints.
type ReservationHandler struct {
	Cfg config.Config
	Svc *service.ReservationService
}

func NewReservationHandler(cfg config.Config, svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Cfg: cfg, Svc: svc}
}

type reserveReq struct {
	BookID   uint64 `json:"book_id"`
	HoldDays *int   `json:"hold_days"`
}

type reservationResp struct {
	ID              uint64 `json:"id"`
	BookID          uint64 `json:"book_id"`
	UserID          uint64 `json:"user_id"`
	QueuePosition   *int   `json:"queue_position,omitempty"`
	ReservationDate string `json:"reservation_date"`
	ExpiryDate      string `json:"expiry_date"`
	Status          string `json:"status"`
	Closed          bool   `json:"closed"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	return reservationResp{
		ID: r.ID, BookID: r.BookID, UserID: r.UserID, QueuePosition: r.QueuePosition,
		ReservationDate: r.ReservationDate.Format(dateLayout),
		ExpiryDate:      r.ExpiryDate.Format(dateLayout),
		Status:          r.Status, Closed: r.ClosedFlag,
	}
}

func toReservationResps(rs []model.Reservation) []reservationResp {
	out := make([]reservationResp, len(rs))
	for i := range rs {
		out[i] = toReservationResp(&rs[i])
	}
	return out
}

// Create places a reservation for the authenticated member.
// hold_days falls back to the configured pickup window.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil || req.BookID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "book_id required"})
	}
	days := h.Cfg.HoldDays
	if req.HoldDays != nil {
		days = *req.HoldDays
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.Create(ctx, req.BookID, userID, days)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

// Cancel closes the member's own reservation. Admins cancel through
// AdminCancel without the ownership check.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.Cancel(ctx, id, &userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// AdminCancel closes any reservation regardless of owner.
func (h *ReservationHandler) AdminCancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.Cancel(ctx, id, nil)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Get returns a single reservation.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.Get(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// ListAll returns every reservation (admin).
func (h *ReservationHandler) ListAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rs, err := h.Svc.ListAll(ctx)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResps(rs))
}

// MyActive returns the authenticated member's reservations whose
// pickup window covers today.
func (h *ReservationHandler) MyActive(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rs, err := h.Svc.ActiveByUser(ctx, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResps(rs))
}

// ActiveByUser returns a member's currently claiming reservations (admin).
func (h *ReservationHandler) ActiveByUser(c echo.Context) error {
	userID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rs, err := h.Svc.ActiveByUser(ctx, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResps(rs))
}

// ActiveByBook returns a book's currently claiming reservations (admin).
func (h *ReservationHandler) ActiveByBook(c echo.Context) error {
	bookID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rs, err := h.Svc.ActiveByBook(ctx, bookID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResps(rs))
}

// Sweep expires every reservation whose pickup window has passed
// (admin, same operation the daily scheduler runs).
func (h *ReservationHandler) Sweep(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	n, err := h.Svc.ExpireOverdueWindows(ctx)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
