// Package httpapi exposes the cabincore service as a JSON API.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"cabincore/internal/appstate"
	"cabincore/internal/core"
)

// ActorHeader carries the id of the acting user on every request.
const ActorHeader = "X-User-ID"

// Server routes HTTP requests to a core.Service.
type Server struct {
	svc      *core.Service
	cache    *appstate.Cache
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	limiter  *clientLimiter
	origins  []string
	shareURL string
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer exposes the registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCache attaches the state cache refreshed by the health probe.
func WithCache(cache *appstate.Cache) Option {
	return func(s *Server) { s.cache = cache }
}

// WithRateLimit limits each client address to r requests per second with the
// given burst. A zero rate disables limiting.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) {
		if r <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = newClientLimiter(r, burst, 10*time.Minute)
	}
}

// WithAllowedOrigins restricts CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithShareURL sets the link encoded as QR code in PDF summaries.
func WithShareURL(url string) Option {
	return func(s *Server) { s.shareURL = url }
}

// WithClock overrides the timestamp printed on summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Server for svc.
func New(svc *core.Service, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		logger:  slog.Default(),
		limiter: newClientLimiter(20, 40, 10*time.Minute),
		origins: []string{"*"},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in CORS, rate limiting and
// request logging.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", s.health)
	if s.gatherer != nil {
		metrics := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		router.Handler(http.MethodGet, "/metrics", metrics)
	}

	router.GET("/api/v1/catalog", s.catalog)
	router.GET("/api/v1/document", s.document)
	router.GET("/api/v1/summary", s.renderSummary)
	router.GET("/api/v1/availability/:night", s.availability)

	router.GET("/api/v1/users", s.listUsers)
	router.POST("/api/v1/users", s.registerUser)
	router.GET("/api/v1/users/:id", s.getUser)
	router.PATCH("/api/v1/users/:id", s.updateUser)
	router.DELETE("/api/v1/users/:id", s.deleteUser)

	router.GET("/api/v1/bookings", s.listBookings)
	router.POST("/api/v1/bookings", s.createBooking)
	router.PATCH("/api/v1/bookings/:id", s.updateBooking)
	router.DELETE("/api/v1/bookings/:id", s.deleteBooking)

	router.POST("/api/v1/day-visits", s.addDayVisit)
	router.DELETE("/api/v1/day-visits/:id", s.deleteDayVisit)

	router.POST("/api/v1/activities", s.proposeActivity)
	router.PATCH("/api/v1/activities/:id", s.updateActivity)
	router.DELETE("/api/v1/activities/:id", s.deleteActivity)
	router.POST("/api/v1/activities/:id/like", s.toggleLike)

	router.POST("/api/v1/schedule", s.scheduleActivity)
	router.PATCH("/api/v1/schedule/:id", s.updateSchedule)
	router.DELETE("/api/v1/schedule/:id", s.deleteSchedule)

	router.POST("/api/v1/rides", s.offerRide)
	router.PATCH("/api/v1/rides/:id", s.updateRide)
	router.DELETE("/api/v1/rides/:id", s.deleteRide)
	router.POST("/api/v1/rides/:id/seats/:leg", s.joinRide)
	router.DELETE("/api/v1/rides/:id/seats/:leg", s.leaveRide)

	var h http.Handler = router
	if s.limiter != nil {
		h = s.limiter.middleware(h)
	}
	h = cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", ActorHeader},
		ExposedHeaders: []string{"ETag", degradedHeader},
	}).Handler(h)
	return s.logRequests(h)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.String("actor", r.Header.Get(ActorHeader)),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
