package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Priya8975/trackflow/internal/attribution"
)

// Store is everything the HTTP API reads from or writes to Postgres.
type Store interface {
	LinkStore
	LinkResolver
	CampaignStore
	VisitorStore
	ConversionStore
	EventLister
	MetricsStore
}

type Queue interface {
	JobQueue
	QueueDepther
}

type LiveHub interface {
	ClientCounter
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Deps are the collaborators and settings the router wires into handlers.
type Deps struct {
	Store      Store
	Queue      Queue
	Limiter    Limiter
	Attributor Attributor
	Hub        LiveHub
	Logger     *slog.Logger

	// Breaker and CRMSink are set when conversions are forwarded to a CRM.
	Breaker CircuitReporter
	CRMSink string

	PublicBaseURL   string
	ShortCodeLength int
	TrackRateLimit  int
	DefaultModel    attribution.Model
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Tracking clients post from other origins
	r.Use(corsMiddleware)

	// Handlers
	trackHandler := NewTrackHandler(d.Queue, d.Limiter, d.TrackRateLimit, d.Logger)
	redirectHandler := NewRedirectHandler(d.Store, d.Queue, d.Logger)
	linkHandler := NewLinkHandler(d.Store, d.PublicBaseURL, d.ShortCodeLength)
	campaignHandler := NewCampaignHandler(d.Store)
	visitorHandler := NewVisitorHandler(d.Store)
	attributionHandler := NewAttributionHandler(d.Attributor, d.DefaultModel)
	conversionHandler := NewConversionHandler(d.Store)
	eventHandler := NewEventHandler(d.Store)
	dashHandler := NewDashboardHandler(d.Store, d.Queue, d.Hub, d.Logger)
	if d.Breaker != nil && d.CRMSink != "" {
		dashHandler.ReportCircuit(d.Breaker, d.CRMSink)
	}

	// WebSocket endpoint
	r.Get("/ws", d.Hub.HandleWebSocket)

	// Short links
	r.Get("/r/{code}", redirectHandler.Redirect)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/track", trackHandler.Track)
		r.Get("/pixel.gif", trackHandler.Pixel)

		r.Route("/links", func(r chi.Router) {
			r.Post("/", linkHandler.Create)
			r.Get("/", linkHandler.List)
			r.Get("/{code}", linkHandler.Get)
			r.Patch("/{code}", linkHandler.Update)
			r.Get("/{code}/qr.png", linkHandler.QRCode)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", campaignHandler.Create)
			r.Get("/", campaignHandler.List)
			r.Get("/report", campaignHandler.Report)
		})

		r.Route("/visitors/{id}", func(r chi.Router) {
			r.Get("/", visitorHandler.Get)
			r.Get("/journey", visitorHandler.Journey)
		})

		r.Get("/attribution", attributionHandler.Get)

		r.Route("/conversions", func(r chi.Router) {
			r.Get("/", conversionHandler.List)
			r.Get("/export.csv", conversionHandler.Export)
		})

		r.Get("/events", eventHandler.List)
		r.Get("/metrics", dashHandler.Metrics)
	})

	return r
}

// corsMiddleware adds CORS headers for tracking clients and the dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
