package handlers

import (
	"net/http"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxregistry"
	"fknsrs.biz/p/clipcatalog/internal/httputil"
)

type artistResponse struct {
	ID string `json:"id"`
	*catalog.Artist
	Videos int `json:"videos"`
	Clips  int `json:"clips"`
}

// Artists lists the registry with clip and video counts taken from the
// mirror. Registry entries with no clips are included with zero counts.
func Artists(rw http.ResponseWriter, r *http.Request) {
	rows, err := ctxdb.GetDB(r.Context()).QueryContext(
		r.Context(),
		"select a.value, count(*), count(distinct c.video_id) from clips c, json_each(c.artists) a group by a.value",
	)
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	type counts struct{ videos, clips int }

	m := make(map[string]counts)
	for rows.Next() {
		var (
			id string
			c  counts
		)
		if err := rows.Scan(&id, &c.clips, &c.videos); err != nil {
			panic(err)
		}
		m[id] = c
	}
	if err := rows.Err(); err != nil {
		panic(err)
	}

	artists := ctxregistry.GetRegistry(r.Context()).List()

	out := make([]artistResponse, len(artists))
	for i, a := range artists {
		out[i] = artistResponse{
			ID:     a.ID,
			Artist: a,
			Videos: m[a.ID].videos,
			Clips:  m[a.ID].clips,
		}
	}

	httputil.WriteJSON(rw, r, http.StatusOK, out)
}
