package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openshelf/library-api/internal/model"
	"github.com/openshelf/library-api/internal/queue"
	"github.com/openshelf/library-api/internal/repository"
)

var testDay = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func defaultPolicy() FinePolicy { return FinePolicy{DailyRate: 0.25, GraceDays: 0} }

func newBorrowing(books BookStore, loans LoanStore, completer ReservationCompleter, rec *eventRecorder) *BorrowingService {
	var pub EventPublisher
	if rec != nil {
		pub = rec.publish
	}
	return NewBorrowingService(fakeTx{}, books, loans, existingUsers(), completer, pub, defaultPolicy(), fixedClock{testDay})
}

func TestCheckOutRejectsNonPositiveLoanDays(t *testing.T) {
	svc := newBorrowing(nil, nil, nil, nil)
	for _, days := range []int{0, -3} {
		_, err := svc.CheckOut(context.Background(), 1, 1, days)
		require.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestCheckOutMissingBook(t *testing.T) {
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := newBorrowing(books, nil, nil, nil)
	_, err := svc.CheckOut(context.Background(), 42, 1, 14)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckOutNoCopiesAvailable(t *testing.T) {
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return &model.Book{ID: 1, Title: "Dune", TotalCopies: 2, AvailableCopies: 0}, nil
		},
	}
	loans := &mockLoans{
		HasActiveTxFn: func(context.Context, *sql.Tx, uint64, uint64) (bool, error) { return false, nil },
	}
	svc := newBorrowing(books, loans, nil, nil)
	_, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCheckOutDuplicateActiveLoan(t *testing.T) {
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return &model.Book{ID: 1, TotalCopies: 2, AvailableCopies: 2}, nil
		},
	}
	loans := &mockLoans{
		HasActiveTxFn: func(context.Context, *sql.Tx, uint64, uint64) (bool, error) { return true, nil },
	}
	svc := newBorrowing(books, loans, nil, nil)
	_, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCheckOutGuardedDecrementLoses(t *testing.T) {
	// The row was free when read but the guarded UPDATE matched
	// nothing: the checkout must fail, not go negative.
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return &model.Book{ID: 1, TotalCopies: 1, AvailableCopies: 1}, nil
		},
		DecrementAvailableTxFn: func(context.Context, *sql.Tx, uint64) error {
			return repository.ErrNoChange
		},
	}
	loans := &mockLoans{
		HasActiveTxFn: func(context.Context, *sql.Tx, uint64, uint64) (bool, error) { return false, nil },
	}
	svc := newBorrowing(books, loans, nil, nil)
	_, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCheckOutSuccess(t *testing.T) {
	decremented := 0
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return &model.Book{ID: 1, Title: "Dune", TotalCopies: 2, AvailableCopies: 2}, nil
		},
		DecrementAvailableTxFn: func(context.Context, *sql.Tx, uint64) error {
			decremented++
			return nil
		},
	}
	var inserted *model.BorrowingRecord
	loans := &mockLoans{
		HasActiveTxFn: func(context.Context, *sql.Tx, uint64, uint64) (bool, error) { return false, nil },
		InsertTxFn: func(_ context.Context, _ *sql.Tx, rec *model.BorrowingRecord) error {
			rec.ID = 99
			inserted = rec
			return nil
		},
	}
	completed := false
	completer := &mockCompleter{
		CompleteFn: func(_ context.Context, _ *sql.Tx, userID, bookID uint64) (uint64, error) {
			completed = true
			require.EqualValues(t, 7, userID)
			require.EqualValues(t, 1, bookID)
			return 0, nil
		},
	}
	events := &eventRecorder{}
	svc := newBorrowing(books, loans, completer, events)

	view, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.NoError(t, err)

	require.Equal(t, 1, decremented)
	require.True(t, completed)
	require.NotNil(t, inserted)
	today := DateOnly(testDay)
	require.Equal(t, today, inserted.BorrowDate)
	require.Equal(t, today.AddDate(0, 0, 14), inserted.DueDate)
	require.Equal(t, model.LoanStatusActive, inserted.Status)

	require.EqualValues(t, 99, view.Record.ID)
	require.Equal(t, model.LoanStatusActive, view.Status)
	require.Zero(t, view.DaysLate)
	require.Zero(t, view.FineAmount)

	require.Len(t, events.events, 1)
	require.Equal(t, queue.KindLoanCheckedOut, events.events[0].Kind)
	require.Equal(t, "Dune", events.events[0].BookTitle)
}

func checkoutFixtures() (*mockBooks, *mockLoans) {
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return &model.Book{ID: 1, Title: "Dune", TotalCopies: 2, AvailableCopies: 2}, nil
		},
		DecrementAvailableTxFn: func(context.Context, *sql.Tx, uint64) error { return nil },
	}
	loans := &mockLoans{
		HasActiveTxFn: func(context.Context, *sql.Tx, uint64, uint64) (bool, error) { return false, nil },
		InsertTxFn: func(_ context.Context, _ *sql.Tx, rec *model.BorrowingRecord) error {
			rec.ID = 99
			return nil
		},
	}
	return books, loans
}

func TestCheckOutEmitsCompletionAfterCommit(t *testing.T) {
	books, loans := checkoutFixtures()
	completer := &mockCompleter{
		CompleteFn: func(context.Context, *sql.Tx, uint64, uint64) (uint64, error) {
			return 41, nil
		},
	}
	events := &eventRecorder{}
	svc := newBorrowing(books, loans, completer, events)

	_, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.NoError(t, err)

	require.Len(t, events.events, 2)
	require.Equal(t, queue.KindLoanCheckedOut, events.events[0].Kind)
	require.Equal(t, queue.KindReservationCompleted, events.events[1].Kind)
	require.EqualValues(t, 41, events.events[1].ReservationID)
	require.EqualValues(t, 7, events.events[1].UserID)
	require.EqualValues(t, 1, events.events[1].BookID)
}

func TestCheckOutRolledBackPublishesNothing(t *testing.T) {
	// The reservation was completed inside the transaction, but the
	// commit failed: no event may go out for work that was undone.
	books, loans := checkoutFixtures()
	completer := &mockCompleter{
		CompleteFn: func(context.Context, *sql.Tx, uint64, uint64) (uint64, error) {
			return 41, nil
		},
	}
	events := &eventRecorder{}
	svc := NewBorrowingService(rollbackTx{err: errors.New("commit failed")},
		books, loans, existingUsers(), completer, events.publish, defaultPolicy(), fixedClock{testDay})

	_, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.Error(t, err)
	require.Empty(t, events.events)
}

func TestCheckOutNoCopiesReportedBeforeDuplicateLoan(t *testing.T) {
	books := &mockBooks{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.Book, error) {
			return &model.Book{ID: 1, TotalCopies: 2, AvailableCopies: 0}, nil
		},
	}
	loans := &mockLoans{
		HasActiveTxFn: func(context.Context, *sql.Tx, uint64, uint64) (bool, error) {
			t.Fatal("availability is checked before the duplicate-loan lookup")
			return true, nil
		},
	}
	svc := newBorrowing(books, loans, nil, nil)
	_, err := svc.CheckOut(context.Background(), 1, 7, 14)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorContains(t, err, "no copies")
}

func TestReturnMissingRecord(t *testing.T) {
	loans := &mockLoans{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.BorrowingRecord, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := newBorrowing(nil, loans, nil, nil)
	_, err := svc.Return(context.Background(), 5, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReturnIsIdempotent(t *testing.T) {
	returnedOn := DateOnly(testDay).AddDate(0, 0, -1)
	loans := &mockLoans{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.BorrowingRecord, error) {
			rd := returnedOn
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				BorrowDate: returnedOn.AddDate(0, 0, -10),
				DueDate:    returnedOn.AddDate(0, 0, 4),
				ReturnDate: &rd,
				Status:     model.LoanStatusReturned,
			}, nil
		},
		MarkReturnedTxFn: func(context.Context, *sql.Tx, uint64, time.Time) error {
			t.Fatal("already-returned loan must not be updated")
			return nil
		},
	}
	books := &mockBooks{
		IncrementAvailableTxFn: func(context.Context, *sql.Tx, uint64) error {
			t.Fatal("availability must not change on a repeated return")
			return nil
		},
	}
	events := &eventRecorder{}
	svc := newBorrowing(books, loans, nil, events)

	first, err := svc.Return(context.Background(), 5, nil)
	require.NoError(t, err)
	second, err := svc.Return(context.Background(), 5, nil)
	require.NoError(t, err)

	require.Equal(t, *first, *second)
	require.Equal(t, model.LoanStatusReturned, first.Status)
	require.Empty(t, events.events)
}

func TestReturnClosesLoanAndIncrements(t *testing.T) {
	incremented := 0
	books := &mockBooks{
		IncrementAvailableTxFn: func(context.Context, *sql.Tx, uint64) error {
			incremented++
			return nil
		},
	}
	var markedOn time.Time
	loans := &mockLoans{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.BorrowingRecord, error) {
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				BorrowDate: DateOnly(testDay).AddDate(0, 0, -7),
				DueDate:    DateOnly(testDay).AddDate(0, 0, 7),
				Status:     model.LoanStatusActive,
			}, nil
		},
		MarkReturnedTxFn: func(_ context.Context, _ *sql.Tx, id uint64, on time.Time) error {
			require.EqualValues(t, 5, id)
			markedOn = on
			return nil
		},
	}
	events := &eventRecorder{}
	svc := newBorrowing(books, loans, nil, events)

	view, err := svc.Return(context.Background(), 5, nil)
	require.NoError(t, err)

	require.Equal(t, DateOnly(testDay), markedOn)
	require.Equal(t, 1, incremented)
	require.Equal(t, model.LoanStatusReturned, view.Status)
	require.Zero(t, view.FineAmount)
	require.Len(t, events.events, 1)
	require.Equal(t, queue.KindLoanReturned, events.events[0].Kind)
}

func TestReturnSaturatedCounterIsNotAnError(t *testing.T) {
	books := &mockBooks{
		IncrementAvailableTxFn: func(context.Context, *sql.Tx, uint64) error {
			return repository.ErrNoChange
		},
	}
	loans := &mockLoans{
		GetForUpdateTxFn: func(context.Context, *sql.Tx, uint64) (*model.BorrowingRecord, error) {
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				DueDate: DateOnly(testDay).AddDate(0, 0, 7),
				Status:  model.LoanStatusActive,
			}, nil
		},
		MarkReturnedTxFn: func(context.Context, *sql.Tx, uint64, time.Time) error { return nil },
	}
	svc := newBorrowing(books, loans, nil, nil)
	_, err := svc.Return(context.Background(), 5, nil)
	require.NoError(t, err)
}

func TestOverdueFineAccrual(t *testing.T) {
	// Ten days past due at 0.25/day with no grace: 2.50, OVERDUE.
	loans := &mockLoans{
		GetByIDFn: func(context.Context, uint64) (*model.BorrowingRecord, error) {
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				BorrowDate: DateOnly(testDay).AddDate(0, 0, -24),
				DueDate:    DateOnly(testDay).AddDate(0, 0, -10),
				Status:     model.LoanStatusActive,
			}, nil
		},
	}
	svc := newBorrowing(nil, loans, nil, nil)

	view, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, model.LoanStatusOverdue, view.Status)
	require.Equal(t, 10, view.DaysLate)
	require.InDelta(t, 2.50, view.FineAmount, 1e-9)
}

func TestLateReturnFineFixedAtReturnDate(t *testing.T) {
	// Returned four days late; the fine no longer grows with today.
	rd := DateOnly(testDay).AddDate(0, 0, -20)
	loans := &mockLoans{
		GetByIDFn: func(context.Context, uint64) (*model.BorrowingRecord, error) {
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				DueDate:    rd.AddDate(0, 0, -4),
				ReturnDate: &rd,
				Status:     model.LoanStatusReturned,
			}, nil
		},
	}
	svc := newBorrowing(nil, loans, nil, nil)

	view, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, model.LoanStatusReturned, view.Status)
	require.Equal(t, 4, view.DaysLate)
	require.InDelta(t, 1.00, view.FineAmount, 1e-9)
}

func TestFinePolicyGraceAndCap(t *testing.T) {
	maxFine := 1.50
	loans := &mockLoans{
		GetByIDFn: func(context.Context, uint64) (*model.BorrowingRecord, error) {
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				DueDate: DateOnly(testDay).AddDate(0, 0, -12),
				Status:  model.LoanStatusActive,
			}, nil
		},
	}
	svc := NewBorrowingService(fakeTx{}, nil, loans, existingUsers(), nil, nil,
		FinePolicy{DailyRate: 0.25, GraceDays: 2, MaxCap: &maxFine}, fixedClock{testDay})

	view, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, model.LoanStatusOverdue, view.Status)
	require.Equal(t, 10, view.DaysLate)
	require.InDelta(t, 1.50, view.FineAmount, 1e-9)
}

func TestPastDueInsideGraceIsOverdueWithNoFine(t *testing.T) {
	// Due yesterday with two grace days: the fee has not started but
	// the loan already reads OVERDUE.
	loans := &mockLoans{
		GetByIDFn: func(context.Context, uint64) (*model.BorrowingRecord, error) {
			return &model.BorrowingRecord{
				ID: 5, BookID: 1, UserID: 7,
				DueDate: DateOnly(testDay).AddDate(0, 0, -1),
				Status:  model.LoanStatusActive,
			}, nil
		},
	}
	svc := NewBorrowingService(fakeTx{}, nil, loans, existingUsers(), nil, nil,
		FinePolicy{DailyRate: 0.25, GraceDays: 2}, fixedClock{testDay})

	view, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, model.LoanStatusOverdue, view.Status)
	require.Zero(t, view.DaysLate)
	require.Zero(t, view.FineAmount)
}
