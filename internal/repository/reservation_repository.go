package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/openshelf/library-api/internal/model"
)

// ReservationRepo provides data access to the `reservations` table.
// Open reservations (closed_flag = 0) form a per-book queue ordered
// by queue_position ascending, creation time ascending; every query
// that lists a queue follows that ordering.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, book_id, user_id, queue_position, reservation_date, expiry_date,
	status, closed_flag, created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (*model.Reservation, error) {
	var res model.Reservation
	var pos sql.NullInt64
	err := row.Scan(
		&res.ID, &res.BookID, &res.UserID, &pos, &res.ReservationDate, &res.ExpiryDate,
		&res.Status, &res.ClosedFlag, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if pos.Valid {
		p := int(pos.Int64)
		res.QueuePosition = &p
	}
	return &res, nil
}

// InsertTx creates a reservation within the caller's transaction and
// populates the generated ID.
func (r *ReservationRepo) InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
	           (book_id, user_id, queue_position, reservation_date, expiry_date, status, closed_flag)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	var pos interface{}
	if res.QueuePosition != nil {
		pos = *res.QueuePosition
	}
	result, err := tx.ExecContext(ctx, q,
		res.BookID, res.UserID, pos, res.ReservationDate, res.ExpiryDate, res.Status, res.ClosedFlag)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetByID returns a single reservation or sql.ErrNoRows.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

// GetForUpdateTx loads a reservation under FOR UPDATE so concurrent
// cancel/complete/expire decisions for the same row are serialized.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// OpenByUserAndBookTx returns the user's open reservations for a book
// in queue order.  The uniqueness rule means this is normally zero or
// one row, but the caller iterates to stay robust against legacy data.
func (r *ReservationRepo) OpenByUserAndBookTx(ctx context.Context, tx *sql.Tx, userID, bookID uint64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE user_id = ? AND book_id = ? AND closed_flag = 0
	           ORDER BY queue_position, created_at`
	rows, err := tx.QueryContext(ctx, q, userID, bookID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// OpenByBookTx returns all open reservations for a book in queue
// order.  Create uses it to assign the next queue position.
func (r *ReservationRepo) OpenByBookTx(ctx context.Context, tx *sql.Tx, bookID uint64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE book_id = ? AND closed_flag = 0
	           ORDER BY queue_position, created_at`
	rows, err := tx.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// CountActiveOnDateTx counts open reservations for the book whose
// window covers the given date.  This is the "reservations already
// claiming a copy today" figure subtracted from computed availability.
func (r *ReservationRepo) CountActiveOnDateTx(ctx context.Context, tx *sql.Tx, bookID uint64, on time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations
	           WHERE book_id = ?
	             AND status IN (?, ?)
	             AND reservation_date <= ? AND expiry_date >= ?`
	var n int
	err := tx.QueryRowContext(ctx, q,
		bookID, model.ReservationPending, model.ReservationActive, on, on).Scan(&n)
	return n, err
}

// ExpiredOpenIDsTx returns the IDs of open reservations whose window
// ended before the given date.  An empty result is normal and means
// the sweep has nothing to do.
func (r *ReservationRepo) ExpiredOpenIDsTx(ctx context.Context, tx *sql.Tx, before time.Time) ([]uint64, error) {
	const q = `SELECT id FROM reservations
	           WHERE status IN (?, ?) AND expiry_date < ?
	           ORDER BY id`
	rows, err := tx.QueryContext(ctx, q, model.ReservationPending, model.ReservationActive, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BulkExpireTx transitions the given reservations to EXPIRED, closes
// them and stamps updated_at.  Passing an empty slice is a no-op.
func (r *ReservationRepo) BulkExpireTx(ctx context.Context, tx *sql.Tx, ids []uint64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, model.ReservationExpired, now)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	q := `UPDATE reservations
	      SET status = ?, closed_flag = 1, updated_at = ?
	      WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// CloseTx moves a reservation into a terminal status and raises the
// closed flag.  The closed_flag = 0 guard makes closing idempotent at
// the storage level: a second close matches no rows.
func (r *ReservationRepo) CloseTx(ctx context.Context, tx *sql.Tx, id uint64, status string, now time.Time) error {
	const q = `UPDATE reservations
	           SET status = ?, closed_flag = 1, updated_at = ?
	           WHERE id = ? AND closed_flag = 0`
	res, err := tx.ExecContext(ctx, q, status, now, id)
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

func (r *ReservationRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListAll returns every reservation, newest first.
func (r *ReservationRepo) ListAll(ctx context.Context) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations ORDER BY created_at DESC, id DESC`)
}

// ActiveByUserOnDate returns the user's open reservations whose
// window covers the given date, earliest window first.
func (r *ReservationRepo) ActiveByUserOnDate(ctx context.Context, userID uint64, on time.Time) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE user_id = ? AND status IN (?, ?)
		   AND reservation_date <= ? AND expiry_date >= ?
		 ORDER BY reservation_date, created_at`,
		userID, model.ReservationPending, model.ReservationActive, on, on)
}

// ActiveByBookOnDate returns the book's open reservations whose
// window covers the given date, earliest window first.
func (r *ReservationRepo) ActiveByBookOnDate(ctx context.Context, bookID uint64, on time.Time) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE book_id = ? AND status IN (?, ?)
		   AND reservation_date <= ? AND expiry_date >= ?
		 ORDER BY reservation_date, created_at`,
		bookID, model.ReservationPending, model.ReservationActive, on, on)
}
