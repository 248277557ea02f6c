package router

import (
	"github.com/labstack/echo/v4"

	"github.com/openshelf/library-api/internal/handler"
	"github.com/openshelf/library-api/internal/middleware"
)

// RegisterMember registers member-scoped endpoints under /v1.  All
// routes require a valid JWT and the MEMBER role.  Members check out
// and return books, reserve copies, cancel their reservations and
// view their own circulation state.
func RegisterMember(e *echo.Echo, loans *handler.BorrowingHandler, res *handler.ReservationHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("MEMBER"),
	)
	g.POST("/loans", loans.CheckOut)
	g.POST("/loans/:id/return", loans.Return)
	g.GET("/my-loans", loans.MyActive)

	g.POST("/reservations", res.Create)
	g.DELETE("/reservations/:id", res.Cancel)
	g.GET("/my-reservations", res.MyActive)
}
