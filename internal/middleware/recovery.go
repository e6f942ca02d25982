// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"quillpress/internal/apperr"
)

// Recoverer turns a handler panic into a logged stack trace and a JSON 500
// carrying the internal error kind. http.ErrAbortHandler is re-raised so
// the server can drop the connection.
func Recoverer(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", chimw.GetReqID(r.Context()),
					"stack", string(debug.Stack()),
				)
				WriteError(w, r, http.StatusInternalServerError, apperr.KindInternal, "internal error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorResponse is the JSON body of every error answered by the server.
type ErrorResponse struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
}

// WriteError writes a JSON error body of the given kind.
func WriteError(w http.ResponseWriter, r *http.Request, status int, kind apperr.Kind, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: kind, Message: msg})
}
