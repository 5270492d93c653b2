package handlers

import (
	"net/http"

	"fknsrs.biz/p/sorm"
	"github.com/monoculum/formam"

	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxjobqueue"
	"fknsrs.biz/p/clipcatalog/internal/httputil"
	"fknsrs.biz/p/clipcatalog/internal/jobqueue"
	"fknsrs.biz/p/clipcatalog/internal/queuenames"
	"fknsrs.biz/p/clipcatalog/internal/tasks"
)

func Jobs(rw http.ResponseWriter, r *http.Request) {
	query := "order by id desc limit 200"
	if r.URL.Query().Get("pending") != "" {
		query = "where finished_at is null " + query
	}

	jobs := []jobqueue.Job{}
	if err := sorm.FindWhere(r.Context(), ctxdb.GetDB(r.Context()), &jobs, query); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, r, http.StatusOK, jobs)
}

func Sync(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(rw, r, err)
		return
	}

	var input struct {
		Partitions string `formam:"partitions"`
		SkipMirror bool   `formam:"skip_mirror"`
	}

	if err := formam.Decode(r.PostForm, &input); err != nil {
		httputil.BadRequest(rw, r, err)
		return
	}

	keys, err := tasks.ParsePartitions(input.Partitions)
	if err != nil {
		httputil.BadRequest(rw, r, err)
		return
	}

	job := &jobqueue.Job{
		QueueName: queuenames.LibrarySync,
		Payload:   tasks.SyncPayload(keys, !input.SkipMirror),
	}

	if err := ctxjobqueue.Enqueue(r.Context(), job); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, r, http.StatusAccepted, job)
}
