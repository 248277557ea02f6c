package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/openshelf/library-api/internal/model"
)

// BorrowingRepo provides data access to the `borrowing_records`
// table.  Date columns are MySQL DATE values; with parseTime=true
// they scan into time.Time at UTC midnight, so date arithmetic in
// the service layer stays exact.
type BorrowingRepo struct {
	db *sql.DB
}

// NewBorrowingRepo returns a BorrowingRepo bound to the given database.
func NewBorrowingRepo(db *sql.DB) *BorrowingRepo { return &BorrowingRepo{db: db} }

const loanColumns = `id, book_id, user_id, borrow_date, due_date, return_date, status, created_at, updated_at`

func scanLoan(row interface{ Scan(...interface{}) error }) (*model.BorrowingRecord, error) {
	var rec model.BorrowingRecord
	var returned sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.BookID, &rec.UserID, &rec.BorrowDate, &rec.DueDate,
		&returned, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		rec.ReturnDate = &t
	}
	return &rec, nil
}

// InsertTx creates a borrowing record within the caller's transaction
// and populates the generated ID.
func (r *BorrowingRepo) InsertTx(ctx context.Context, tx *sql.Tx, rec *model.BorrowingRecord) error {
	const q = `INSERT INTO borrowing_records (book_id, user_id, borrow_date, due_date, status)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, rec.BookID, rec.UserID, rec.BorrowDate, rec.DueDate, rec.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	return nil
}

// GetByID returns a single record or sql.ErrNoRows.
func (r *BorrowingRepo) GetByID(ctx context.Context, id uint64) (*model.BorrowingRecord, error) {
	return scanLoan(r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM borrowing_records WHERE id = ?`, id))
}

// GetForUpdateTx loads a record under FOR UPDATE so that two
// concurrent returns of the same loan are serialized.
func (r *BorrowingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.BorrowingRecord, error) {
	return scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM borrowing_records WHERE id = ? FOR UPDATE`, id))
}

// MarkReturnedTx closes a loan: sets the return date and flips the
// persisted status to RETURNED.
func (r *BorrowingRepo) MarkReturnedTx(ctx context.Context, tx *sql.Tx, id uint64, returnDate time.Time) error {
	const q = `UPDATE borrowing_records
	           SET return_date = ?, status = ?
	           WHERE id = ? AND return_date IS NULL`
	res, err := tx.ExecContext(ctx, q, returnDate, model.LoanStatusReturned, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNoChange
	}
	return nil
}

// HasActiveTx reports whether the user already holds an ACTIVE loan
// for the book.
func (r *BorrowingRepo) HasActiveTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) (bool, error) {
	const q = `SELECT EXISTS(
	               SELECT 1 FROM borrowing_records
	               WHERE user_id = ? AND book_id = ? AND status = ?
	           )`
	var exists bool
	err := tx.QueryRowContext(ctx, q, userID, bookID, model.LoanStatusActive).Scan(&exists)
	return exists, err
}

// EarliestDueDateTx returns the minimum due date among open loans for
// the book, or nil when the book has no open loans.
func (r *BorrowingRepo) EarliestDueDateTx(ctx context.Context, tx *sql.Tx, bookID uint64) (*time.Time, error) {
	const q = `SELECT MIN(due_date) FROM borrowing_records
	           WHERE book_id = ? AND return_date IS NULL`
	var due sql.NullTime
	if err := tx.QueryRowContext(ctx, q, bookID).Scan(&due); err != nil {
		return nil, err
	}
	if !due.Valid {
		return nil, nil
	}
	t := due.Time
	return &t, nil
}

func (r *BorrowingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.BorrowingRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BorrowingRecord, 0)
	for rows.Next() {
		rec, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ListAll returns every borrowing record, newest first.
func (r *BorrowingRepo) ListAll(ctx context.Context) ([]model.BorrowingRecord, error) {
	return r.list(ctx,
		`SELECT `+loanColumns+` FROM borrowing_records ORDER BY created_at DESC, id DESC`)
}

// ListActiveByUser returns the user's open loans ordered by due date.
func (r *BorrowingRepo) ListActiveByUser(ctx context.Context, userID uint64) ([]model.BorrowingRecord, error) {
	return r.list(ctx,
		`SELECT `+loanColumns+` FROM borrowing_records
		 WHERE user_id = ? AND status = ?
		 ORDER BY due_date, id`, userID, model.LoanStatusActive)
}

// ListActiveByBook returns the book's open loans ordered by due date.
func (r *BorrowingRepo) ListActiveByBook(ctx context.Context, bookID uint64) ([]model.BorrowingRecord, error) {
	return r.list(ctx,
		`SELECT `+loanColumns+` FROM borrowing_records
		 WHERE book_id = ? AND status = ?
		 ORDER BY due_date, id`, bookID, model.LoanStatusActive)
}
