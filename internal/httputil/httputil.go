package httputil

import (
	"encoding/json"
	"net/http"

	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v with the given status. Encoding failures can only be
// logged since the header is already out.
func WriteJSON(rw http.ResponseWriter, r *http.Request, status int, v interface{}) {
	rw.Header().Set("content-type", "application/json; charset=utf-8")
	rw.WriteHeader(status)

	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).Warn("httputil: could not write response body")
	}
}

func Error(rw http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(rw, r, status, errorBody{Error: message})
}

func BadRequest(rw http.ResponseWriter, r *http.Request, err error) {
	Error(rw, r, http.StatusBadRequest, err.Error())
}

func NotFound(rw http.ResponseWriter, r *http.Request) {
	Error(rw, r, http.StatusNotFound, "not found")
}
