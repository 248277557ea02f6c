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

// ReservationService implements the per-book reservation queue: a
// member claims a pickup window on a book, ahead of time when copies
// are out, and the claim is completed, cancelled or expired later.
type ReservationService struct {
	tx         TxRunner
	books      BookStore
	loans      LoanStore
	users      UserStore
	store      ReservationStore
	publish    EventPublisher
	bufferDays int // days after the earliest due date before a pending window opens
	clock      Clock
}

// NewReservationService wires a ReservationService. publish may be
// nil to disable event publishing.
func NewReservationService(tx TxRunner, books BookStore, loans LoanStore, users UserStore,
	store ReservationStore, publish EventPublisher, bufferDays int, clock Clock) *ReservationService {
	if clock == nil {
		clock = UTCClock{}
	}
	return &ReservationService{
		tx: tx, books: books, loans: loans, users: users,
		store: store, publish: publish, bufferDays: bufferDays, clock: clock,
	}
}

// Create places a reservation for the user on the book with a pickup
// window of holdDays days. When a copy is free after subtracting
// reservations already claiming one today, the window starts today
// and the reservation is ACTIVE; otherwise it starts a buffer after
// the earliest open due date and is PENDING. A user may hold at most
// one open reservation per book.
func (s *ReservationService) Create(ctx context.Context, bookID, userID uint64, holdDays int) (*model.Reservation, error) {
	if holdDays <= 0 {
		return nil, fmt.Errorf("hold period must be positive: %w", ErrInvalidInput)
	}

	var res model.Reservation
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.books.GetForUpdateTx(ctx, tx, bookID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
			}
			return err
		}
		ok, err := s.users.ExistsTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}

		mine, err := s.store.OpenByUserAndBookTx(ctx, tx, userID, bookID)
		if err != nil {
			return err
		}
		if len(mine) > 0 {
			return fmt.Errorf("user %d already has an open reservation for book %d: %w", userID, bookID, ErrConflict)
		}

		today := s.clock.Today()
		computed, err := s.books.ComputedAvailableTx(ctx, tx, bookID)
		if err != nil {
			return err
		}
		claiming, err := s.store.CountActiveOnDateTx(ctx, tx, bookID, today)
		if err != nil {
			return err
		}

		var start time.Time
		status := model.ReservationActive
		if computed-claiming > 0 {
			start = today
		} else {
			status = model.ReservationPending
			base := today
			if due, err := s.loans.EarliestDueDateTx(ctx, tx, bookID); err != nil {
				return err
			} else if due != nil {
				base = DateOnly(*due)
			}
			start = base.AddDate(0, 0, s.bufferDays)
		}

		open, err := s.store.OpenByBookTx(ctx, tx, bookID)
		if err != nil {
			return err
		}
		maxPos := 0
		for _, o := range open {
			if o.QueuePosition != nil && *o.QueuePosition > maxPos {
				maxPos = *o.QueuePosition
			}
		}
		pos := maxPos + 1

		res = model.Reservation{
			BookID:          bookID,
			UserID:          userID,
			QueuePosition:   &pos,
			ReservationDate: start,
			ExpiryDate:      start.AddDate(0, 0, holdDays-1),
			Status:          status,
		}
		return s.store.InsertTx(ctx, tx, &res)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, queue.CirculationEvent{
		Kind:          queue.KindReservationCreated,
		ReservationID: res.ID,
		UserID:        userID,
		BookID:        bookID,
		QueuePosition: *res.QueuePosition,
	})
	return &res, nil
}

// Cancel closes an open reservation. Cancelling a reservation that is
// already terminal is a no-op and returns it unchanged. When byUserID
// is set the caller must own the reservation.
func (s *ReservationService) Cancel(ctx context.Context, reservationID uint64, byUserID *uint64) (*model.Reservation, error) {
	var res model.Reservation
	cancelled := false
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.store.GetForUpdateTx(ctx, tx, reservationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reservation %d: %w", reservationID, ErrNotFound)
			}
			return err
		}
		res = *cur
		if byUserID != nil && *byUserID != res.UserID {
			return fmt.Errorf("reservation %d belongs to another user: %w", reservationID, ErrForbidden)
		}
		if !res.Open() {
			return nil
		}

		now := s.clock.Now()
		if err := s.store.CloseTx(ctx, tx, reservationID, model.ReservationCancelled, now); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				return nil
			}
			return err
		}
		res.Status = model.ReservationCancelled
		res.ClosedFlag = true
		res.UpdatedAt = now
		cancelled = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		s.emit(ctx, queue.CirculationEvent{
			Kind:          queue.KindReservationCancelled,
			ReservationID: res.ID,
			UserID:        res.UserID,
			BookID:        res.BookID,
		})
	}
	return &res, nil
}

// ExpireOverdueWindows closes every open reservation whose pickup
// window ended before today and returns how many were expired.
// Running it repeatedly is safe; a second sweep finds nothing.
func (s *ReservationService) ExpireOverdueWindows(ctx context.Context) (int, error) {
	var n int
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		ids, err := s.store.ExpiredOpenIDsTx(ctx, tx, s.clock.Today())
		if err != nil {
			return err
		}
		if err := s.store.BulkExpireTx(ctx, tx, ids, s.clock.Now()); err != nil {
			return err
		}
		n = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.emit(ctx, queue.CirculationEvent{
			Kind:         queue.KindReservationsExpired,
			ExpiredCount: n,
		})
	}
	return n, nil
}

// CompleteIfReservedTx closes the user's first open reservation on
// the book whose pickup window covers today, if any, and returns its
// ID (zero when none matched). At most one reservation is completed
// per call; having none is not an error. It runs inside the caller's
// transaction (the checkout path), so the caller publishes the
// completion event only after that transaction commits.
func (s *ReservationService) CompleteIfReservedTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (uint64, error) {
	open, err := s.store.OpenByUserAndBookTx(ctx, tx, userID, bookID)
	if err != nil {
		return 0, err
	}
	today := s.clock.Today()
	for i := range open {
		if !open[i].WindowContains(today) {
			continue
		}
		err := s.store.CloseTx(ctx, tx, open[i].ID, model.ReservationCompleted, s.clock.Now())
		if err != nil && !errors.Is(err, repository.ErrNoChange) {
			return 0, err
		}
		if err == nil {
			return open[i].ID, nil
		}
		return 0, nil
	}
	return 0, nil
}

// Get returns a single reservation.
func (s *ReservationService) Get(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	res, err := s.store.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reservation %d: %w", reservationID, ErrNotFound)
		}
		return nil, err
	}
	return res, nil
}

// ListAll returns every reservation, newest first.
func (s *ReservationService) ListAll(ctx context.Context) ([]model.Reservation, error) {
	return s.store.ListAll(ctx)
}

// ActiveByUser returns the user's open reservations whose window
// covers today.
func (s *ReservationService) ActiveByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return s.store.ActiveByUserOnDate(ctx, userID, s.clock.Today())
}

// ActiveByBook returns the book's open reservations whose window
// covers today.
func (s *ReservationService) ActiveByBook(ctx context.Context, bookID uint64) ([]model.Reservation, error) {
	return s.store.ActiveByBookOnDate(ctx, bookID, s.clock.Today())
}

func (s *ReservationService) emit(ctx context.Context, ev queue.CirculationEvent) {
	if s.publish == nil {
		return
	}
	ev.OccurredAt = s.clock.Now().Format(time.RFC3339)
	if err := s.publish(ctx, ev); err != nil {
		log.Printf("reservation: publish %s event failed: %v", ev.Kind, err)
	}
}
