package model

import "time"

// Borrowing record statuses.  Only ACTIVE and RETURNED are ever
// persisted; OVERDUE is derived at read time from the due date and
// is never written to the database.
const (
	LoanStatusActive   = "ACTIVE"
	LoanStatusReturned = "RETURNED"
	LoanStatusOverdue  = "OVERDUE"
)

// BorrowingRecord mirrors the `borrowing_records` table.  A record is
// created when a member checks out a book and closed (ReturnDate set,
// status RETURNED) when the book comes back.  At most one ACTIVE
// record may exist per (user, book) pair at a time.
//
// Fields:
//  ID         – primary key identifier.
//  BookID     – book that was checked out.
//  UserID     – member who checked it out.
//  BorrowDate – date the loan started.
//  DueDate    – date the book is due back (borrow + loan days).
//  ReturnDate – date the book was returned (null while open).
//  Status     – persisted status, ACTIVE or RETURNED.
//  CreatedAt  – row creation timestamp.
//  UpdatedAt  – last modification timestamp.
type BorrowingRecord struct {
	ID         uint64     // borrowing_records.id
	BookID     uint64     // borrowing_records.book_id
	UserID     uint64     // borrowing_records.user_id
	BorrowDate time.Time  // borrowing_records.borrow_date (DATE)
	DueDate    time.Time  // borrowing_records.due_date (DATE)
	ReturnDate *time.Time // borrowing_records.return_date (nullable DATE)
	Status     string     // borrowing_records.status
	CreatedAt  time.Time  // borrowing_records.created_at
	UpdatedAt  time.Time  // borrowing_records.updated_at
}

// Returned reports whether the loan has been closed.
func (r *BorrowingRecord) Returned() bool { return r.ReturnDate != nil }
