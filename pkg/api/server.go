// Package api exposes the pallet registry over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solaius/pallet-registry/pkg/archive"
	"github.com/solaius/pallet-registry/pkg/auth"
	"github.com/solaius/pallet-registry/pkg/cache"
	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/metrics"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// DefaultInactivity is the age of the last movement after which a pallet is
// reported by /alertes.
const DefaultInactivity = 60 * 24 * time.Hour

// Deps are the services behind the router. Engine, Archive and Auth are
// required.
type Deps struct {
	Engine        *lifecycle.Engine
	Archive       *archive.Manager
	ArchiveConfig *archive.ArchiveConfig
	Sink          archive.Sink
	Auth          *auth.Service
	Cache         *cache.CacheManager
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
	Clock         func() time.Time
	Inactivity    time.Duration
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Inactivity <= 0 {
		d.Inactivity = DefaultInactivity
	}
	if d.ArchiveConfig == nil {
		d.ArchiveConfig = archive.DefaultArchiveConfig()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
}

// NewRouter builds the HTTP router.
func NewRouter(d Deps) chi.Router {
	d.defaults()
	started := d.Clock()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestMetrics(d.Metrics))

	r.Get("/healthz", HealthHandler(d, started))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Post("/auth/login", LoginHandler(d))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Auth))

		r.Get("/palettes/{num}", GetPalletHandler(d))
		r.Get("/palettes/{num}/statuts", StatusHistoryHandler(d))
		r.Get("/palettes/{num}/mouvements", MovementHistoryHandler(d))
		r.Get("/palettes:next-number", NextNumberHandler(d))
		r.Get("/consultation", SearchHandler(d))
		r.Get("/emplacements", ListLocationsHandler(d))
		r.Get("/inventaire", ListByStatusHandler(d, pallet.StatusToInventory))

		r.With(d.Cache.StatsMiddleware()).Get("/stats", StatsHandler(d))
		r.With(d.Cache.StatsMiddleware()).Get("/alertes", AlertsHandler(d))
		r.With(d.Cache.ReferenceMiddleware()).Get("/clients", ClientsHandler(d))
		r.With(d.Cache.ReferenceMiddleware()).Get("/clients/{client}/articles", ArticlesHandler(d))

		r.Group(func(r chi.Router) {
			r.Use(d.Cache.InvalidateOnWrite(false))
			r.Post("/entree", IntakeHandler(d))
			r.Patch("/emplacements/palette", UpdateLocationHandler(d))
			r.Post("/inventaire/valider", ValidateBatchHandler(d, lifecycle.OpInventory))
			for _, exit := range exitRoutes {
				r.Get("/sorties/"+exit.path, ListByStatusHandler(d, exit.status))
				r.Post("/sorties/"+exit.path+"/valider", ValidateBatchHandler(d, exit.operation))
			}
		})

		r.With(d.Cache.InvalidateOnWrite(true)).Post("/palettes", RegisterHandler(d))

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(pallet.RoleAdmin))
			r.Get("/archives", ListArchiveHandler(d))
			r.Get("/archives/expired", ExpiredArchiveHandler(d))
			r.Delete("/archives/expired", DeleteExpiredHandler(d))
			r.Group(func(r chi.Router) {
				r.Use(d.Cache.InvalidateOnWrite(true))
				r.Post("/statut", ChangeStatusHandler(d))
				r.Post("/purge", PurgeHandler(d))
				r.Post("/restore", RestoreHandler(d))
			})
		})
	})

	return r
}

type exitRoute struct {
	path      string
	status    pallet.Status
	operation lifecycle.Operation
}

var exitRoutes = []exitRoute{
	{"destruction", pallet.StatusToDestroy, lifecycle.OpDestruction},
	{"renvoi", pallet.StatusToReturn, lifecycle.OpReturn},
	{"production", pallet.StatusInStock, lifecycle.OpProductionExit},
}

// requestMetrics records every request under its route pattern.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.HTTPRequest(route, r.Method, status, time.Since(start))
		})
	}
}

// HealthHandler handles GET /healthz. It pings the database.
func HealthHandler(d Deps, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{
			"status":   "alive",
			"uptime":   d.Clock().Sub(started).Round(time.Second).String(),
			"database": "up",
		}
		sqlDB, err := d.Engine.Repository().DB().DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			resp["status"] = "degraded"
			resp["database"] = "down"
			d.Logger.Warn("health check: database unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// LoginHandler handles POST /auth/login.
func LoginHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Login    string `json:"login"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if req.Login == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "login and password are required")
			return
		}
		tok, err := d.Auth.Login(r.Context(), req.Login, req.Password)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, tok)
	}
}

// operator returns the authenticated operator. The auth middleware
// guarantees one is present.
func operator(r *http.Request) pallet.Operator {
	op, _ := auth.OperatorFromContext(r.Context())
	return op
}
