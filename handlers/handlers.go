// Package handlers serves the mirror database as JSON.
package handlers

import (
	"net/http"

	"fknsrs.biz/p/sorm/qsorm"
	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gorilla/mux"

	"fknsrs.biz/p/clipcatalog/internal/ctxconfig"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/godatautil"
	"fknsrs.biz/p/clipcatalog/internal/httputil"
	"fknsrs.biz/p/clipcatalog/internal/sqlbuilderutil"
)

const (
	defaultTop = 50
	maxTop     = 500
)

func NewRouter() *mux.Router {
	m := mux.NewRouter()

	m.Methods(http.MethodGet).Path("/videos").HandlerFunc(Videos)
	m.Methods(http.MethodGet).Path("/videos/{id}").HandlerFunc(Video)
	m.Methods(http.MethodGet).Path("/clips").HandlerFunc(Clips)
	m.Methods(http.MethodGet).Path("/clips/{uuid}").HandlerFunc(Clip)
	m.Methods(http.MethodGet).Path("/artists").HandlerFunc(Artists)
	m.Methods(http.MethodGet).Path("/jobs").HandlerFunc(Jobs)
	m.Methods(http.MethodPost).Path("/sync").HandlerFunc(Sync)

	m.NotFoundHandler = http.HandlerFunc(httputil.NotFound)

	return m
}

type listResponse struct {
	Skip  int         `json:"skip"`
	Count int         `json:"count"`
	Items interface{} `json:"items"`
}

// list runs an OData style listing query against table, writing either the
// rows or a 400 for a query that can't be translated. It reports whether the
// rows were written.
func list(rw http.ResponseWriter, r *http.Request, table *sqlbuilderutil.Table, out interface{}, defaultOrders ...sb.AsOrderingTerm) bool {
	q, err := godatautil.ParseQuery(r.URL.Query(), ctxconfig.ListMaxTop(r.Context(), maxTop))
	if err != nil {
		httputil.BadRequest(rw, r, err)
		return false
	}

	condition, err := godatautil.MakeCondition(q, table)
	if err != nil {
		httputil.BadRequest(rw, r, err)
		return false
	}

	orders, err := godatautil.MakeOrders(q, table, defaultOrders...)
	if err != nil {
		httputil.BadRequest(rw, r, err)
		return false
	}

	if err := qsorm.FindWhere(
		r.Context(),
		ctxdb.GetDB(r.Context()),
		out,
		condition,
		orders,
		godatautil.MakeOffsetLimit(q, 0, defaultTop),
	); err != nil {
		panic(err)
	}

	return true
}
