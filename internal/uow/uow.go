// Package uow coordinates the relational transaction of a single use case
// and exposes the document projection as a separate, uncoordinated save
// path.
//
// Only the relational side is transactional.  Projection writes go through
// Documents() and must be issued after Run has returned, so a failure
// there can leave the projection behind the credential store but never
// ahead of it.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/edusmart-auth/internal/dbx"
	"github.com/iliyamo/edusmart-auth/internal/model"
)

// ErrNestedTransaction is returned when Run is called with a context that
// already belongs to an open unit of work.
var ErrNestedTransaction = errors.New("uow: nested transactions are not supported")

// DocumentStore is the projection side of the unit of work.
type DocumentStore interface {
	Upsert(ctx context.Context, doc model.AccountCollection) error
	Delete(ctx context.Context, accountID string) error
	FindByAccountID(ctx context.Context, accountID string) (model.AccountCollection, error)
	FindActiveByEmail(ctx context.Context, email string) (model.AccountCollection, error)
}

// Func is a unit of work.  Returning commit=false with a nil error rolls
// the transaction back without reporting a failure.
type Func func(ctx context.Context, tx dbx.DBTX) (commit bool, err error)

type txKey struct{}

// UnitOfWork wraps a *sql.DB and a projection store.
type UnitOfWork struct {
	db   *sql.DB
	docs DocumentStore
}

func New(db *sql.DB, docs DocumentStore) *UnitOfWork {
	return &UnitOfWork{db: db, docs: docs}
}

// DB exposes the pool for reads that need no transaction.
func (u *UnitOfWork) DB() dbx.DBTX { return u.db }

// Documents returns the projection store.  Writes through it are not part
// of any relational transaction.
func (u *UnitOfWork) Documents() DocumentStore { return u.docs }

// Run begins a transaction, runs fn and commits when fn asks for it.  An
// error from fn, a panic, or commit=false rolls back.  The error from fn is
// returned unchanged; panics are re-raised after the rollback.  Cancelling
// ctx aborts the transaction through database/sql.
func (u *UnitOfWork) Run(ctx context.Context, fn Func) (err error) {
	if ctx.Value(txKey{}) != nil {
		return ErrNestedTransaction
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if !committed {
			_ = tx.Rollback()
		}
	}()

	commit, err := fn(context.WithValue(ctx, txKey{}, tx), tx)
	if err != nil || !commit {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// InTx reports whether ctx was handed out by Run.
func InTx(ctx context.Context) bool { return ctx.Value(txKey{}) != nil }
