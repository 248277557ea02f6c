package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/openshelf/library-api/internal/model"
	"github.com/openshelf/library-api/internal/queue"
)

// The engines depend on narrow store interfaces rather than the
// concrete repositories. Methods suffixed Tx run inside the caller's
// transaction; the rest read committed state.

// TxRunner begins a transaction, runs fn inside it, and commits when
// fn returns nil (rolling back otherwise).
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// BookStore is the slice of the book repository the engines use.
type BookStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Book, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Book, error)
	ComputedAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) (int, error)
	DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error
	IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error
}

// LoanStore is the slice of the borrowing repository the engines use.
type LoanStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, rec *model.BorrowingRecord) error
	GetByID(ctx context.Context, id uint64) (*model.BorrowingRecord, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.BorrowingRecord, error)
	MarkReturnedTx(ctx context.Context, tx *sql.Tx, id uint64, returnedOn time.Time) error
	HasActiveTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (bool, error)
	EarliestDueDateTx(ctx context.Context, tx *sql.Tx, bookID uint64) (*time.Time, error)
	ListAll(ctx context.Context) ([]model.BorrowingRecord, error)
	ListActiveByUser(ctx context.Context, userID uint64) ([]model.BorrowingRecord, error)
	ListActiveByBook(ctx context.Context, bookID uint64) ([]model.BorrowingRecord, error)
}

// ReservationStore is the slice of the reservation repository the
// engines use.
type ReservationStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error)
	OpenByUserAndBookTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) ([]model.Reservation, error)
	OpenByBookTx(ctx context.Context, tx *sql.Tx, bookID uint64) ([]model.Reservation, error)
	CountActiveOnDateTx(ctx context.Context, tx *sql.Tx, bookID uint64, on time.Time) (int, error)
	ExpiredOpenIDsTx(ctx context.Context, tx *sql.Tx, before time.Time) ([]uint64, error)
	BulkExpireTx(ctx context.Context, tx *sql.Tx, ids []uint64, now time.Time) error
	CloseTx(ctx context.Context, tx *sql.Tx, id uint64, status string, now time.Time) error
	ListAll(ctx context.Context) ([]model.Reservation, error)
	ActiveByUserOnDate(ctx context.Context, userID uint64, on time.Time) ([]model.Reservation, error)
	ActiveByBookOnDate(ctx context.Context, bookID uint64, on time.Time) ([]model.Reservation, error)
}

// UserStore answers existence checks for members.
type UserStore interface {
	ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error)
}

// ReservationCompleter is the hook the borrowing engine calls inside
// its checkout transaction so a member picking up a reserved copy
// closes their reservation atomically with the loan. It returns the
// completed reservation's ID (zero when none), which the caller uses
// to publish the completion event once the transaction has committed.
type ReservationCompleter interface {
	CompleteIfReservedTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (uint64, error)
}

// EventPublisher emits a domain event after commit. A nil publisher
// disables events; publish failures are logged by the caller and
// never fail the operation.
type EventPublisher func(ctx context.Context, ev queue.CirculationEvent) error
