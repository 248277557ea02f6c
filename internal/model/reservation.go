package model

import "time"

// Reservation statuses.  PENDING and ACTIVE are the two possible
// outcomes of creation (depending on net availability at that
// moment); COMPLETED, CANCELLED and EXPIRED are terminal states and
// always coincide with ClosedFlag = true.
const (
	ReservationPending   = "PENDING"
	ReservationActive    = "ACTIVE"
	ReservationCompleted = "COMPLETED"
	ReservationCancelled = "CANCELLED"
	ReservationExpired   = "EXPIRED"
)

// Reservation records a member's claim on a book copy during the
// window [ReservationDate, ExpiryDate].  A member may hold at most
// one open (ClosedFlag = false) reservation per book.  QueuePosition
// is a per-book monotonically increasing integer among open
// reservations, assigned at creation.
//
// Fields:
//  ID              – primary key identifier.
//  BookID          – book being reserved.
//  UserID          – member who reserved it.
//  QueuePosition   – position in the per-book queue (nullable).
//  ReservationDate – first day of the pickup window.
//  ExpiryDate      – last day of the pickup window.
//  Status          – one of the status constants above.
//  ClosedFlag      – true once the reservation is terminal.
//  CreatedAt       – row creation timestamp.
//  UpdatedAt       – last modification timestamp.
type Reservation struct {
	ID              uint64    // reservations.id
	BookID          uint64    // reservations.book_id
	UserID          uint64    // reservations.user_id
	QueuePosition   *int      // reservations.queue_position (nullable)
	ReservationDate time.Time // reservations.reservation_date (DATE)
	ExpiryDate      time.Time // reservations.expiry_date (DATE)
	Status          string    // reservations.status
	ClosedFlag      bool      // reservations.closed_flag
	CreatedAt       time.Time // reservations.created_at
	UpdatedAt       time.Time // reservations.updated_at
}

// Open reports whether the reservation can still transition.
func (r *Reservation) Open() bool { return !r.ClosedFlag }

// WindowContains reports whether the given date falls inside the
// reservation's pickup window (both ends inclusive).
func (r *Reservation) WindowContains(day time.Time) bool {
	return !day.Before(r.ReservationDate) && !day.After(r.ExpiryDate)
}
