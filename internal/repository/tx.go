package repository

import (
	"context"
	"database/sql"
)

// TxRunner executes a function inside a single database transaction.
// On a nil error from fn the transaction is committed; any error (or
// a panic unwinding through the deferred rollback) leaves the store
// untouched.  Services use it so that every public operation is one
// all-or-nothing unit of work.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner returns a TxRunner bound to the given database handle.
func NewTxRunner(db *sql.DB) *TxRunner { return &TxRunner{db: db} }

// RunInTx begins a transaction, invokes fn with it and commits when
// fn returns nil.  The rollback in the deferred function is a no-op
// after a successful commit.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
