package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the API router.
func (s *Service) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.HandleHealth)

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", s.HandleCreateCampaign)
		r.Delete("/{campaignID}", s.HandleDeleteCampaign)
		r.Get("/{campaignID}/stats", s.HandleCampaignStats)
		r.Get("/{campaignID}/tracking", s.HandleTrackingFeed)
		r.Post("/{campaignID}/resend-unopened", s.HandleResendUnopened)
	})

	r.Get("/drip-campaigns", s.HandleDripDashboard)
	r.Delete("/drip-campaigns/{campaignID}", s.HandleDeleteDripCampaign)

	r.Post("/webhooks/ses", s.HandleSESWebhook)

	return r
}

// HandleHealth is a simple liveness probe.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
