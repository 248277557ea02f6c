package repository

import (
	"context"
	"database/sql"

	"github.com/openshelf/library-api/internal/model"
)

// BookRepo provides data access to the `books` table.  Besides plain
// CRUD it owns the availability ledger: the raw available_copies
// counter is only ever mutated through guarded decrement/increment
// statements that cannot leave the 0..total_copies range, and the
// computed figure (total minus open loans) is exposed alongside it so
// callers can reconcile the two.
type BookRepo struct {
	db *sql.DB
}

// NewBookRepo returns a BookRepo bound to the given database.
func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

const bookColumns = `id, isbn, title, author, publisher, publication_year, category,
	total_copies, available_copies, description, created_at, updated_at`

func scanBook(row interface{ Scan(...interface{}) error }) (*model.Book, error) {
	var b model.Book
	err := row.Scan(
		&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Publisher, &b.PublicationYear,
		&b.Category, &b.TotalCopies, &b.AvailableCopies, &b.Description,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new book and populates the generated ID.  When
// available_copies was left zero while total_copies is positive, the
// available counter starts at total_copies, mirroring a freshly
// catalogued book whose copies are all on the shelf.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	if b.AvailableCopies == 0 && b.TotalCopies > 0 {
		b.AvailableCopies = b.TotalCopies
	}
	const q = `INSERT INTO books
		(isbn, title, author, publisher, publication_year, category, total_copies, available_copies, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		b.ISBN, b.Title, b.Author, b.Publisher, b.PublicationYear, b.Category,
		b.TotalCopies, b.AvailableCopies, b.Description)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByID returns a single book or sql.ErrNoRows.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (*model.Book, error) {
	return scanBook(r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
}

// GetForUpdateTx loads a book row under FOR UPDATE inside the given
// transaction so that concurrent checkout/reservation decisions for
// the same book are serialized by the storage engine.
func (r *BookRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Book, error) {
	return scanBook(tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ? FOR UPDATE`, id))
}

// ExistsByISBN reports whether a book with the given ISBN exists.
func (r *BookRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE isbn = ?`, isbn).Scan(&n)
	return n > 0, err
}

// List returns all books ordered by title.
func (r *BookRepo) List(ctx context.Context) ([]model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Update rewrites the catalogue fields of a book.  The availability
// counters are deliberately not touched here; they only move through
// the guarded decrement/increment below.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	const q = `UPDATE books
		SET isbn = ?, title = ?, author = ?, publisher = ?, publication_year = ?,
		    category = ?, description = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		b.ISBN, b.Title, b.Author, b.Publisher, b.PublicationYear,
		b.Category, b.Description, b.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a book row.  Callers must check HasCirculationRefs
// first; the foreign keys will otherwise reject the delete anyway.
func (r *BookRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasCirculationRefs reports whether any borrowing record or
// reservation still references the book.  Books with circulation
// history are never deleted.
func (r *BookRepo) HasCirculationRefs(ctx context.Context, id uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM borrowing_records WHERE book_id = ?)
	                  OR EXISTS(SELECT 1 FROM reservations WHERE book_id = ?)`
	var refs bool
	err := r.db.QueryRowContext(ctx, q, id, id).Scan(&refs)
	return refs, err
}

// ComputedAvailableTx returns total_copies minus the number of open
// loans for the book, evaluated inside the caller's transaction.
// This is the authoritative cross-check for the raw counter.
func (r *BookRepo) ComputedAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) (int, error) {
	const q = `SELECT b.total_copies - COALESCE((
	               SELECT COUNT(*) FROM borrowing_records br
	               WHERE br.book_id = b.id AND br.return_date IS NULL
	           ), 0)
	           FROM books b WHERE b.id = ?`
	var n int
	err := tx.QueryRowContext(ctx, q, id).Scan(&n)
	return n, err
}

// ComputedAvailable is the non-transactional variant used by read
// endpoints that report availability.
func (r *BookRepo) ComputedAvailable(ctx context.Context, id uint64) (int, error) {
	const q = `SELECT b.total_copies - COALESCE((
	               SELECT COUNT(*) FROM borrowing_records br
	               WHERE br.book_id = b.id AND br.return_date IS NULL
	           ), 0)
	           FROM books b WHERE b.id = ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, id).Scan(&n)
	return n, err
}

// DecrementAvailableTx takes one copy off the shelf.  The WHERE guard
// keeps the counter from ever dropping below zero; when no row
// matches, ErrNoChange is returned and the caller treats it as "no
// copies available".
func (r *BookRepo) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE books
		SET available_copies = available_copies - 1
		WHERE id = ? AND available_copies > 0`
	res, err := tx.ExecContext(ctx, q, id)
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

// IncrementAvailableTx puts one copy back.  The guard against
// exceeding total_copies means a double return surfaces as
// ErrNoChange instead of silently corrupting the ledger.
func (r *BookRepo) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE books
		SET available_copies = available_copies + 1
		WHERE id = ? AND available_copies < total_copies`
	res, err := tx.ExecContext(ctx, q, id)
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
