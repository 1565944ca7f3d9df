package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dharsanguruparan/FlatDrop/internal/model"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.observe)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, &model.Error{Kind: model.KindNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, &model.Error{Kind: model.KindMethod})
	})

	r.Get("/healthz", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/convert", s.handleConvert)
		r.Post("/convert-pdf", s.handleConvert)
	})

	r.Group(func(r chi.Router) {
		if !s.opts.OpenTimeRemaining {
			r.Use(s.requireBearer)
		}
		r.Get("/time-remaining/{filename}", s.handleTimeRemaining)
		r.Get("/time-remaining/{filename}/stream", s.handleTimeRemainingStream)
	})

	if s.opts.Downloads != nil {
		r.With(s.requireBearer).Get("/downloads/{filename}", s.handleDownload)
	}
	return r
}
