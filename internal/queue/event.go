// Package queue defines message payloads exchanged over the message broker.
package queue

// Event kinds carried by CirculationEvent.
const (
	KindLoanCheckedOut       = "loan.checked_out"
	KindLoanReturned         = "loan.returned"
	KindReservationCreated   = "reservation.created"
	KindReservationCancelled = "reservation.cancelled"
	KindReservationCompleted = "reservation.completed"
	KindReservationsExpired  = "reservations.expired"
)

// CirculationEvent is published whenever a loan or reservation changes
// state. It carries enough information for downstream consumers to log,
// notify, or trigger analytics without querying the primary database.
// Fields that do not apply to a given kind are left at their zero value.
type CirculationEvent struct {
	Kind          string  `json:"kind"`
	LoanID        uint64  `json:"loan_id,omitempty"`
	ReservationID uint64  `json:"reservation_id,omitempty"`
	UserID        uint64  `json:"user_id,omitempty"`
	BookID        uint64  `json:"book_id,omitempty"`
	BookTitle     string  `json:"book_title,omitempty"`
	DueDate       string  `json:"due_date,omitempty"`
	ReturnDate    string  `json:"return_date,omitempty"`
	FineAmount    float64 `json:"fine_amount,omitempty"`
	QueuePosition int     `json:"queue_position,omitempty"`
	ExpiredCount  int     `json:"expired_count,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
}
