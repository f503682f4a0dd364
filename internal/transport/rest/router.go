package rest

import (
	"net/http"
	"time"

	"github.com/avolkov/afisha/internal/domain"
	"github.com/avolkov/afisha/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Cache     domain.CacheRepository
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	RateLimit       int
	RateLimitWindow time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Cache == nil {
		panic("rest.NewRouter: nil cache")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	r.Use(Metrics)
	r.Use(RateLimitMiddleware(d.Cache, d.RateLimit, d.RateLimitWindow))
	r.Use(SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// public read surface, no auth
	r.Get("/events/{eventID}", d.Handler.PublicEvent)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		r.Route("/users/{userID}", func(r chi.Router) {
			// participation requests
			r.Post("/requests", d.Handler.SubmitRequest)
			r.Get("/requests", d.Handler.MyRequests)
			r.Patch("/requests/{requestID}/cancel", d.Handler.CancelRequest)

			// initiator events
			r.Post("/events", d.Handler.CreateEvent)
			r.Get("/events", d.Handler.MyEvents)
			r.Get("/events/{eventID}", d.Handler.MyEvent)
			r.Patch("/events/{eventID}", d.Handler.UpdateEvent)

			// organizer view of the queue + batch decisions
			r.Get("/events/{eventID}/requests", d.Handler.EventRequests)
			r.Patch("/events/{eventID}/requests", d.Handler.ModerateRequests)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/events", d.Handler.AdminEvents)
			r.Patch("/events/{eventID}", d.Handler.AdminModerateEvent)
		})
	})

	return r
}
