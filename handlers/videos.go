package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"fknsrs.biz/p/sorm"
	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gorilla/mux"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/httputil"
	"fknsrs.biz/p/clipcatalog/models"
)

func Videos(rw http.ResponseWriter, r *http.Request) {
	videos := []models.VideoRecord{}
	if !list(rw, r, models.VideoTable, &videos,
		sb.OrderDesc(models.VideoTable.C("PublishedAt")),
		sb.OrderAsc(models.VideoTable.C("VideoID")),
	) {
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, listResponse{
		Skip:  skipOf(r),
		Count: len(videos),
		Items: videos,
	})
}

type videoResponse struct {
	models.VideoRecord
	Clips []models.ClipRecord `json:"clips"`
}

func Video(rw http.ResponseWriter, r *http.Request) {
	id, err := catalog.ParseVideoID(mux.Vars(r)["id"])
	if err != nil {
		httputil.BadRequest(rw, r, err)
		return
	}

	db := ctxdb.GetDB(r.Context())

	var video models.VideoRecord
	if err := sorm.FindFirstWhere(r.Context(), db, &video, "where video_id = ?", id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(rw, r)
			return
		}

		panic(err)
	}

	clips := []models.ClipRecord{}
	if err := sorm.FindWhere(r.Context(), db, &clips, "where video_id = ? order by start_time_secs asc", id.String()); err != nil {
		panic(err)
	}

	httputil.WriteJSON(rw, r, http.StatusOK, videoResponse{VideoRecord: video, Clips: clips})
}
