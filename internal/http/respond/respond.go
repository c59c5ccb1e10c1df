// Package respond writes JSON bodies and typed errors.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"passport/internal/app/interceptors"
	"passport/internal/lib/apperr"
	"passport/internal/lib/logger/sl"
	"passport/internal/lib/utilities"
)

type errorBody struct {
	Message string `json:"message"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error renders err as {"message": ...} with the status of its code.
// Untyped errors are internal; their cause is only shown outside prod.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	e := apperr.From(err)
	msg := e.Message

	if e.Code == apperr.CodeInternal {
		log.Error("request failed", slog.String("path", r.URL.Path), sl.Err(err))
		if utilities.EnvFromContext(r.Context()) != interceptors.EnvProd && e.Cause != nil {
			msg = e.Error()
		}
	}
	JSON(w, e.Status(), errorBody{Message: msg})
}

// Redirect sends a 302 to location
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusFound)
}
