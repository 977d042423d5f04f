package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel-draft-backend/internal/auth"
	"github.com/DoyleJ11/duel-draft-backend/internal/draft"
	"github.com/DoyleJ11/duel-draft-backend/internal/httpapi/apierr"
	"github.com/DoyleJ11/duel-draft-backend/internal/hub"
	"github.com/DoyleJ11/duel-draft-backend/internal/metrics"
	"github.com/DoyleJ11/duel-draft-backend/internal/ws"
)

type Deps struct {
	Service *draft.Service
	Hub     *hub.Hub
	Logger  *zap.SugaredLogger
	// Verifier is nil when token checks are disabled.
	Verifier       *auth.Verifier
	CORSOrigins    []string
	RequestTimeout time.Duration
	WS             ws.Options
}

func SetupRoutes(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 10 * time.Second
	}
	h := NewHandler(d.Logger, d.Service)

	wsOpts := d.WS
	wsOpts.Hub = d.Hub
	wsOpts.Drafts = d.Service
	wsOpts.Logger = d.Logger
	if wsOpts.OriginPatterns == nil {
		wsOpts.OriginPatterns = d.CORSOrigins
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if d.Verifier != nil {
			r.Use(d.Verifier.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
				apierr.Handle(w, err)
			}))
		}

		r.Get("/drafts/{id}/ws", ws.Handler(wsOpts))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))

			r.Post("/leagues/{id}/pairs", h.CreatePairs)
			r.Get("/leagues/{id}/pairs", h.ListPairs)
			r.Post("/pairs/{id}/draft", h.StartDraft)
			r.Get("/drafts/{id}/snapshot", h.Snapshot)
			r.Get("/drafts/{id}/rosters", h.Rosters)
			r.Post("/drafts/{id}/picks", h.SubmitPick)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
				return
			}
			logger.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
