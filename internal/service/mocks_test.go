package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/openshelf/library-api/internal/model"
	"github.com/openshelf/library-api/internal/queue"
)

// fakeTx satisfies TxRunner without a database: fn runs with a nil
// *sql.Tx, which the function-field mocks below ignore.
type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error { return fn(nil) }

// rollbackTx runs fn but fails the transaction afterwards, like a
// commit that did not go through.
type rollbackTx struct{ err error }

func (r rollbackTx) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	return r.err
}

// fixedClock pins "now" (and therefore "today") for deterministic
// date arithmetic in tests.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time   { return c.t }
func (c fixedClock) Today() time.Time { return DateOnly(c.t) }

type mockBooks struct {
	GetByIDFn              func(ctx context.Context, id uint64) (*model.Book, error)
	GetForUpdateTxFn       func(ctx context.Context, tx *sql.Tx, id uint64) (*model.Book, error)
	ComputedAvailableTxFn  func(ctx context.Context, tx *sql.Tx, id uint64) (int, error)
	DecrementAvailableTxFn func(ctx context.Context, tx *sql.Tx, id uint64) error
	IncrementAvailableTxFn func(ctx context.Context, tx *sql.Tx, id uint64) error
}

func (m *mockBooks) GetByID(ctx context.Context, id uint64) (*model.Book, error) {
	return m.GetByIDFn(ctx, id)
}
func (m *mockBooks) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Book, error) {
	return m.GetForUpdateTxFn(ctx, tx, id)
}
func (m *mockBooks) ComputedAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) (int, error) {
	return m.ComputedAvailableTxFn(ctx, tx, id)
}
func (m *mockBooks) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return m.DecrementAvailableTxFn(ctx, tx, id)
}
func (m *mockBooks) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return m.IncrementAvailableTxFn(ctx, tx, id)
}

type mockLoans struct {
	InsertTxFn          func(ctx context.Context, tx *sql.Tx, rec *model.BorrowingRecord) error
	GetByIDFn           func(ctx context.Context, id uint64) (*model.BorrowingRecord, error)
	GetForUpdateTxFn    func(ctx context.Context, tx *sql.Tx, id uint64) (*model.BorrowingRecord, error)
	MarkReturnedTxFn    func(ctx context.Context, tx *sql.Tx, id uint64, returnedOn time.Time) error
	HasActiveTxFn       func(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (bool, error)
	EarliestDueDateTxFn func(ctx context.Context, tx *sql.Tx, bookID uint64) (*time.Time, error)
	ListAllFn           func(ctx context.Context) ([]model.BorrowingRecord, error)
	ListActiveByUserFn  func(ctx context.Context, userID uint64) ([]model.BorrowingRecord, error)
	ListActiveByBookFn  func(ctx context.Context, bookID uint64) ([]model.BorrowingRecord, error)
}

func (m *mockLoans) InsertTx(ctx context.Context, tx *sql.Tx, rec *model.BorrowingRecord) error {
	return m.InsertTxFn(ctx, tx, rec)
}
func (m *mockLoans) GetByID(ctx context.Context, id uint64) (*model.BorrowingRecord, error) {
	return m.GetByIDFn(ctx, id)
}
func (m *mockLoans) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.BorrowingRecord, error) {
	return m.GetForUpdateTxFn(ctx, tx, id)
}
func (m *mockLoans) MarkReturnedTx(ctx context.Context, tx *sql.Tx, id uint64, returnedOn time.Time) error {
	return m.MarkReturnedTxFn(ctx, tx, id, returnedOn)
}
func (m *mockLoans) HasActiveTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (bool, error) {
	return m.HasActiveTxFn(ctx, tx, userID, bookID)
}
func (m *mockLoans) EarliestDueDateTx(ctx context.Context, tx *sql.Tx, bookID uint64) (*time.Time, error) {
	return m.EarliestDueDateTxFn(ctx, tx, bookID)
}
func (m *mockLoans) ListAll(ctx context.Context) ([]model.BorrowingRecord, error) {
	return m.ListAllFn(ctx)
}
func (m *mockLoans) ListActiveByUser(ctx context.Context, userID uint64) ([]model.BorrowingRecord, error) {
	return m.ListActiveByUserFn(ctx, userID)
}
func (m *mockLoans) ListActiveByBook(ctx context.Context, bookID uint64) ([]model.BorrowingRecord, error) {
	return m.ListActiveByBookFn(ctx, bookID)
}

type mockReservations struct {
	InsertTxFn            func(ctx context.Context, tx *sql.Tx, res *model.Reservation) error
	GetByIDFn             func(ctx context.Context, id uint64) (*model.Reservation, error)
	GetForUpdateTxFn      func(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error)
	OpenByUserAndBookTxFn func(ctx context.Context, tx *sql.Tx, userID, bookID uint64) ([]model.Reservation, error)
	OpenByBookTxFn        func(ctx context.Context, tx *sql.Tx, bookID uint64) ([]model.Reservation, error)
	CountActiveOnDateTxFn func(ctx context.Context, tx *sql.Tx, bookID uint64, on time.Time) (int, error)
	ExpiredOpenIDsTxFn    func(ctx context.Context, tx *sql.Tx, before time.Time) ([]uint64, error)
	BulkExpireTxFn        func(ctx context.Context, tx *sql.Tx, ids []uint64, now time.Time) error
	CloseTxFn             func(ctx context.Context, tx *sql.Tx, id uint64, status string, now time.Time) error
	ListAllFn             func(ctx context.Context) ([]model.Reservation, error)
	ActiveByUserOnDateFn  func(ctx context.Context, userID uint64, on time.Time) ([]model.Reservation, error)
	ActiveByBookOnDateFn  func(ctx context.Context, bookID uint64, on time.Time) ([]model.Reservation, error)
}

func (m *mockReservations) InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	return m.InsertTxFn(ctx, tx, res)
}
func (m *mockReservations) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return m.GetByIDFn(ctx, id)
}
func (m *mockReservations) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	return m.GetForUpdateTxFn(ctx, tx, id)
}
func (m *mockReservations) OpenByUserAndBookTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) ([]model.Reservation, error) {
	return m.OpenByUserAndBookTxFn(ctx, tx, userID, bookID)
}
func (m *mockReservations) OpenByBookTx(ctx context.Context, tx *sql.Tx, bookID uint64) ([]model.Reservation, error) {
	return m.OpenByBookTxFn(ctx, tx, bookID)
}
func (m *mockReservations) CountActiveOnDateTx(ctx context.Context, tx *sql.Tx, bookID uint64, on time.Time) (int, error) {
	return m.CountActiveOnDateTxFn(ctx, tx, bookID, on)
}
func (m *mockReservations) ExpiredOpenIDsTx(ctx context.Context, tx *sql.Tx, before time.Time) ([]uint64, error) {
	return m.ExpiredOpenIDsTxFn(ctx, tx, before)
}
func (m *mockReservations) BulkExpireTx(ctx context.Context, tx *sql.Tx, ids []uint64, now time.Time) error {
	return m.BulkExpireTxFn(ctx, tx, ids, now)
}
func (m *mockReservations) CloseTx(ctx context.Context, tx *sql.Tx, id uint64, status string, now time.Time) error {
	return m.CloseTxFn(ctx, tx, id, status, now)
}
func (m *mockReservations) ListAll(ctx context.Context) ([]model.Reservation, error) {
	return m.ListAllFn(ctx)
}
func (m *mockReservations) ActiveByUserOnDate(ctx context.Context, userID uint64, on time.Time) ([]model.Reservation, error) {
	return m.ActiveByUserOnDateFn(ctx, userID, on)
}
func (m *mockReservations) ActiveByBookOnDate(ctx context.Context, bookID uint64, on time.Time) ([]model.Reservation, error) {
	return m.ActiveByBookOnDateFn(ctx, bookID, on)
}

type mockUsers struct {
	ExistsTxFn func(ctx context.Context, tx *sql.Tx, id uint64) (bool, error)
}

func (m *mockUsers) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	return m.ExistsTxFn(ctx, tx, id)
}

// existingUsers returns a UserStore that knows every ID.
func existingUsers() *mockUsers {
	return &mockUsers{ExistsTxFn: func(context.Context, *sql.Tx, uint64) (bool, error) { return true, nil }}
}

type mockCompleter struct {
	CompleteFn func(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (uint64, error)
}

func (m *mockCompleter) CompleteIfReservedTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (uint64, error) {
	return m.CompleteFn(ctx, tx, userID, bookID)
}

// eventRecorder collects published events.
type eventRecorder struct{ events []queue.CirculationEvent }

func (r *eventRecorder) publish(_ context.Context, ev queue.CirculationEvent) error {
	r.events = append(r.events, ev)
	return nil
}
