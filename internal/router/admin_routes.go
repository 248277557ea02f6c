package router

import (
	"github.com/labstack/echo/v4"

	"github.com/openshelf/library-api/internal/handler"
	"github.com/openshelf/library-api/internal/middleware"
)

// RegisterAdmin registers librarian endpoints under /v1/admin.  All
// routes require a valid JWT and the ADMIN role: catalogue CRUD,
// circulation listings for any member or book, reservation management
// and a manual expiry sweep.
func RegisterAdmin(e *echo.Echo, books *handler.BookHandler, loans *handler.BorrowingHandler, res *handler.ReservationHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ADMIN"),
	)

	g.POST("/books", books.Create)
	g.PUT("/books/:id", books.Update)
	g.DELETE("/books/:id", books.Delete)

	g.GET("/loans", loans.ListAll)
	g.GET("/loans/:id", loans.Get)
	g.GET("/users/:id/loans", loans.ActiveByUser)
	g.GET("/books/:id/loans", loans.ActiveByBook)

	g.GET("/reservations", res.ListAll)
	g.GET("/reservations/:id", res.Get)
	g.DELETE("/reservations/:id", res.AdminCancel)
	g.GET("/users/:id/reservations", res.ActiveByUser)
	g.GET("/books/:id/reservations", res.ActiveByBook)

	// Same operation the daily scheduler runs, for on-demand cleanup.
	g.POST("/reservations/sweep", res.Sweep)
}
