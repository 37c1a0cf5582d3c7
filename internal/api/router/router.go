package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-whatsapp-bot/internal/http/middleware"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *whatsapp.WebhookHandler
	MetricsHandler http.Handler

	// Webhook rate limit per client IP. Zero disables it.
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	// Admin routes are mounted only when AdminJWTSecret is set.
	AdminJWTSecret    string
	AdminJWTIssuer    string
	LeadsHandler      *leads.Handler
	AdminAppointments *handlers.AdminAppointmentsHandler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Route("/webhook", func(wh chi.Router) {
			if cfg.WebhookRatePerSecond > 0 {
				wh.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst))
			}
			wh.Get("/", cfg.Webhook.HandleVerification)
			wh.Post("/", cfg.Webhook.HandleInbound)
		})
	}

	if cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret, cfg.AdminJWTIssuer))
			admin.Use(middleware.NoCache)
			if cfg.AdminAppointments != nil {
				admin.Get("/appointments", cfg.AdminAppointments.ListAppointments)
				admin.Post("/appointments/cancel", cfg.AdminAppointments.CancelAppointment)
			}
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.ListLeads)
				admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
			}
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
