package ctxjobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/jobqueue"
)

var ErrNoWorker = errors.New("ctxjobqueue: no worker found in context")

var workerKey int

func WithWorker(ctx context.Context, w *jobqueue.Worker) context.Context {
	return context.WithValue(ctx, &workerKey, w)
}

func GetWorker(ctx context.Context) *jobqueue.Worker {
	w, _ := ctx.Value(&workerKey).(*jobqueue.Worker)
	return w
}

func Register(w *jobqueue.Worker) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithWorker(r.Context(), w)))
	}
}

// Enqueue adds jobs through the context's worker, all or none. It joins a
// transaction already open in ctx.
func Enqueue(ctx context.Context, jobs ...*jobqueue.Job) error {
	w := GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("ctxjobqueue.Enqueue: %w", ErrNoWorker)
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, job := range jobs {
			if err := w.Add(ctx, tx, job); err != nil {
				return fmt.Errorf("%s: %w", job.QueueName, err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("ctxjobqueue.Enqueue: %w", err)
	}

	return nil
}
