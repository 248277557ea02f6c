package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openshelf/library-api/internal/model"
	"github.com/openshelf/library-api/internal/queue"
	"github.com/openshelf/library-api/internal/repository"
)

// FinePolicy controls how late fees are derived from an overdue loan.
// The fee is never persisted; it is recomputed on every read.
type FinePolicy struct {
	DailyRate float64  // fee per late day
	GraceDays int      // days past due before the fee starts
	MaxCap    *float64 // optional ceiling, nil = uncapped
}

// LoanView is a borrowing record enriched with the derived fields:
// the effective status (RETURNED, OVERDUE or ACTIVE), days late and
// the accrued fine under the service's FinePolicy.
type LoanView struct {
	Record     model.BorrowingRecord
	Status     string
	DaysLate   int
	FineAmount float64
}

// BorrowingService implements checkout and return of book copies.
type BorrowingService struct {
	tx        TxRunner
	books     BookStore
	loans     LoanStore
	users     UserStore
	completer ReservationCompleter
	publish   EventPublisher
	policy    FinePolicy
	clock     Clock
}

// NewBorrowingService wires a BorrowingService. completer and publish
// may be nil to disable reservation completion and event publishing.
func NewBorrowingService(tx TxRunner, books BookStore, loans LoanStore, users UserStore,
	completer ReservationCompleter, publish EventPublisher, policy FinePolicy, clock Clock) *BorrowingService {
	if clock == nil {
		clock = UTCClock{}
	}
	return &BorrowingService{
		tx: tx, books: books, loans: loans, users: users,
		completer: completer, publish: publish, policy: policy, clock: clock,
	}
}

// CheckOut lends one copy of the book to the user for loanDays days.
// It fails with ErrInvalidInput for a non-positive period,
// ErrNotFound for a missing book or user and ErrConflict when no copy
// is free or the user already holds this book. On success the
// availability counter is decremented and, if the user had an open
// reservation whose pickup window covers today, that reservation is
// completed in the same transaction; its completion event is
// published only after the commit.
func (s *BorrowingService) CheckOut(ctx context.Context, bookID, userID uint64, loanDays int) (*LoanView, error) {
	if loanDays <= 0 {
		return nil, fmt.Errorf("loan period must be positive: %w", ErrInvalidInput)
	}

	var (
		rec          model.BorrowingRecord
		title        string
		completedRes uint64
	)
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		book, err := s.books.GetForUpdateTx(ctx, tx, bookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
			}
			return err
		}
		title = book.Title

		ok, err := s.users.ExistsTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}

		if book.AvailableCopies <= 0 {
			return fmt.Errorf("no copies of book %d available: %w", bookID, ErrConflict)
		}

		active, err := s.loans.HasActiveTx(ctx, tx, userID, bookID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("user %d already borrowed book %d: %w", userID, bookID, ErrConflict)
		}

		if err := s.books.DecrementAvailableTx(ctx, tx, bookID); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				return fmt.Errorf("no copies of book %d available: %w", bookID, ErrConflict)
			}
			return err
		}

		today := s.clock.Today()
		rec = model.BorrowingRecord{
			BookID:     bookID,
			UserID:     userID,
			BorrowDate: today,
			DueDate:    today.AddDate(0, 0, loanDays),
			Status:     model.LoanStatusActive,
		}
		if err := s.loans.InsertTx(ctx, tx, &rec); err != nil {
			return err
		}

		if s.completer != nil {
			completedRes, err = s.completer.CompleteIfReservedTx(ctx, tx, userID, bookID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, queue.CirculationEvent{
		Kind:      queue.KindLoanCheckedOut,
		LoanID:    rec.ID,
		UserID:    userID,
		BookID:    bookID,
		BookTitle: title,
		DueDate:   rec.DueDate.Format("2006-01-02"),
	})
	if completedRes != 0 {
		s.emit(ctx, queue.CirculationEvent{
			Kind:          queue.KindReservationCompleted,
			ReservationID: completedRes,
			UserID:        userID,
			BookID:        bookID,
		})
	}

	v := s.view(rec)
	return &v, nil
}

// Return closes the loan. Returning an already-returned loan is a
// no-op and yields the current view. When returnedOn is nil, today is
// used. The availability counter is incremented, saturating at the
// total copy count.
func (s *BorrowingService) Return(ctx context.Context, recordID uint64, returnedOn *time.Time) (*LoanView, error) {
	var rec model.BorrowingRecord
	closed := false
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.loans.GetForUpdateTx(ctx, tx, recordID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("borrowing record %d: %w", recordID, ErrNotFound)
			}
			return err
		}
		rec = *cur
		if rec.Returned() {
			return nil
		}

		date := s.clock.Today()
		if returnedOn != nil {
			date = DateOnly(*returnedOn)
		}
		if err := s.loans.MarkReturnedTx(ctx, tx, recordID, date); err != nil {
			return err
		}
		rec.ReturnDate = &date
		rec.Status = model.LoanStatusReturned
		closed = true

		// Saturates at total_copies; a no-op there is not an error.
		if err := s.books.IncrementAvailableTx(ctx, tx, rec.BookID); err != nil && !errors.Is(err, repository.ErrNoChange) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	v := s.view(rec)
	if closed {
		s.emit(ctx, queue.CirculationEvent{
			Kind:       queue.KindLoanReturned,
			LoanID:     rec.ID,
			UserID:     rec.UserID,
			BookID:     rec.BookID,
			ReturnDate: rec.ReturnDate.Format("2006-01-02"),
			FineAmount: v.FineAmount,
		})
	}
	return &v, nil
}

// Get returns the view of a single borrowing record.
func (s *BorrowingService) Get(ctx context.Context, recordID uint64) (*LoanView, error) {
	rec, err := s.loans.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("borrowing record %d: %w", recordID, ErrNotFound)
		}
		return nil, err
	}
	v := s.view(*rec)
	return &v, nil
}

// ListAll returns views of every borrowing record, newest first.
func (s *BorrowingService) ListAll(ctx context.Context) ([]LoanView, error) {
	recs, err := s.loans.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(recs), nil
}

// ActiveByUser returns the user's open loans ordered by due date.
func (s *BorrowingService) ActiveByUser(ctx context.Context, userID uint64) ([]LoanView, error) {
	recs, err := s.loans.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(recs), nil
}

// ActiveByBook returns the book's open loans ordered by due date.
func (s *BorrowingService) ActiveByBook(ctx context.Context, bookID uint64) ([]LoanView, error) {
	recs, err := s.loans.ListActiveByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return s.views(recs), nil
}

// view derives status, days late and fine for a record. The reference
// day is the return date for closed loans and today for open ones.
// Grace only delays the fee: a loan past its due date is OVERDUE even
// while no fine has accrued yet.
func (s *BorrowingService) view(rec model.BorrowingRecord) LoanView {
	ref := s.clock.Today()
	if rec.ReturnDate != nil {
		ref = DateOnly(*rec.ReturnDate)
	}
	late := daysBetween(rec.DueDate.AddDate(0, 0, s.policy.GraceDays), ref)
	if late < 0 {
		late = 0
	}
	fine := s.policy.DailyRate * float64(late)
	if s.policy.MaxCap != nil && fine > *s.policy.MaxCap {
		fine = *s.policy.MaxCap
	}

	status := model.LoanStatusActive
	switch {
	case rec.Returned():
		status = model.LoanStatusReturned
	case ref.After(DateOnly(rec.DueDate)):
		status = model.LoanStatusOverdue
	}
	return LoanView{Record: rec, Status: status, DaysLate: late, FineAmount: fine}
}

func (s *BorrowingService) views(recs []model.BorrowingRecord) []LoanView {
	out := make([]LoanView, len(recs))
	for i, r := range recs {
		out[i] = s.view(r)
	}
	return out
}

func (s *BorrowingService) emit(ctx context.Context, ev queue.CirculationEvent) {
	if s.publish == nil {
		return
	}
	ev.OccurredAt = s.clock.Now().Format(time.RFC3339)
	if err := s.publish(ctx, ev); err != nil {
		log.Printf("borrowing: publish %s event failed: %v", ev.Kind, err)
	}
}
