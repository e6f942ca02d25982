// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up the operational HTTP surface of quillpress: the
// health check used by orchestrators and load balancers.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"quillpress/internal/apperr"
	"quillpress/internal/middleware"
)

// healthTimeout bounds each dependency ping.
const healthTimeout = 2 * time.Second

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// New creates the chi router. checks maps a dependency name to its probe.
func New(log *slog.Logger, checks map[string]Pinger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.Logger(log))

	r.Get("/health", healthHandler(log, checks))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusNotFound, apperr.KindNotFound, "no such route")
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthHandler pings every dependency and answers 503 if any is down.
func healthHandler(log *slog.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK

		for name, p := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := p.Ping(ctx)
			cancel()
			if err != nil {
				log.Warn("health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		render.Status(r, code)
		render.JSON(w, r, resp)
	}
}
