package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"fknsrs.biz/p/sorm"
	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gorilla/mux"

	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/httputil"
	"fknsrs.biz/p/clipcatalog/internal/temporalid"
	"fknsrs.biz/p/clipcatalog/models"
)

func Clips(rw http.ResponseWriter, r *http.Request) {
	clips := []models.ClipSearch{}
	if !list(rw, r, models.ClipSearchTable, &clips,
		sb.OrderDesc(models.ClipSearchTable.C("VideoPublishedAt")),
		sb.OrderAsc(models.ClipSearchTable.C("ClipStartTimeSecs")),
	) {
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, listResponse{
		Skip:  skipOf(r),
		Count: len(clips),
		Items: clips,
	})
}

func Clip(rw http.ResponseWriter, r *http.Request) {
	id, err := temporalid.Parse(mux.Vars(r)["uuid"])
	if err != nil {
		httputil.BadRequest(rw, r, err)
		return
	}

	var clip models.ClipSearch
	if err := sorm.FindFirstWhere(r.Context(), ctxdb.GetDB(r.Context()), &clip, "where clip_uuid = ?", id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, r, http.StatusOK, clip)
}

// only called after the query has been validated by list
func skipOf(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
	return n
}
