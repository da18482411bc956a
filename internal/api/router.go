package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *APIHandler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Identity(jwtSecret))

		r.Get("/health", h.Health)
		r.Get("/main-sentiments", h.ListSentiments)
		r.Get("/emotional-intentions/{sentimentID}", h.ListIntentions)
		r.Get("/journeys/{sentimentID}", h.GetDefaultJourney)
		r.Get("/personalized-journey/{sentimentID}/{intentionID}", h.GetPersonalizedJourney)

		r.Route("/emotional-recommendations", func(r chi.Router) {
			r.Post("/", h.StartSession)
			r.Get("/analytics", h.Analytics)
			r.Get("/history/{userID}", h.History)
			r.Post("/{sessionID}/feedback", h.RecordFeedback)
			r.Post("/{sessionID}/complete", h.CompleteSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireToken(jwtSecret))
			r.Post("/admin/relevance/recalculate", h.Recalculate)
		})
	})

	return r
}
