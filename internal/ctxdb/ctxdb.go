package ctxdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

var ErrNoDB = errors.New("ctxdb: no db found in context")

var (
	dbKey int
	txKey int
)

func WithDB(ctx context.Context, db *sql.DB) context.Context {
	return context.WithValue(ctx, &dbKey, db)
}

func GetDB(ctx context.Context) *sql.DB {
	db, _ := ctx.Value(&dbKey).(*sql.DB)
	return db
}

// GetTx returns the transaction opened by an enclosing UsingTx, if any.
func GetTx(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(&txKey).(*sql.Tx)
	return tx
}

type TxFunc func(ctx context.Context, tx *sql.Tx) error

// UsingTx runs fn in a transaction on the context's database, committing
// when fn returns nil and rolling back when it fails or panics. Inside
// another UsingTx, fn joins the outer transaction and the outer call decides
// whether to commit.
func UsingTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) (err error) {
	if tx := GetTx(ctx); tx != nil {
		return fn(ctx, tx)
	}

	db := GetDB(ctx)
	if db == nil {
		return ErrNoDB
	}

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("ctxdb.UsingTx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}

		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("ctxdb.UsingTx: rollback: %w", rerr))
		}
	}()

	if err := fn(context.WithValue(ctx, &txKey, tx), tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ctxdb.UsingTx: %w", err)
	}

	committed = true

	return nil
}

func Register(db *sql.DB) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithDB(r.Context(), db)))
	}
}
