// internal/server/routes.go
//
// HTTP surface of the dashboard service.
//
// Context
// -------
// The browser renders forms and lists; this service owns the answers.  It
// serves form definitions, replays form state through the validation
// engine, runs post-submit actions against the store backend, and shapes
// screen lists (search, filter, sort, derived columns).
//
// Routes
// ------
//
//	GET    /healthz
//	GET    /metrics
//	GET    /api/forms
//	GET    /api/forms/{id}              ?record=<id> for edit mode
//	POST   /api/forms/{id}/validate
//	POST   /api/forms/{id}/submit
//	GET    /api/screens
//	GET    /api/screens/{name}          ?q=&sort=&desc=&<field>=<value>
//	DELETE /api/screens/{name}/{id}
//	POST   /api/screens/{name}/{id}/{command}   activate, purge, ...
//
// Notes
// -----
// • Everything under /api runs behind Identify; the principal decides which
//   fields and screens the caller sees.
// • Errors are JSON: {"error": "..."}.  A rejected submit is 422 with the
//   engine state so the client can show field errors.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jmoiron/sqlx"
	"github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/acl"
	"github.com/yanizio/storedash/internal/middleware"
	"github.com/yanizio/storedash/internal/requestinfo"
	"github.com/yanizio/storedash/internal/screen"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	API   screen.Backend
	DB    *sqlx.DB
	Hooks *retryablehttp.Client
	Log   *zap.Logger

	UserHeader string
	ForceHTTPS bool
	Geo        *geoip2.Reader // optional

	// Identify overrides acl.Identify(DB, UserHeader).  Tests use it to
	// inject a principal without a database.
	Identify func(http.Handler) http.Handler
}

type handlers struct{ Deps }

// Routes builds the root handler.
func Routes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.L()
	}
	if d.Identify == nil {
		d.Identify = acl.Identify(d.DB, d.UserHeader)
	}
	h := &handlers{d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestinfo.Enrich(d.Geo))
	r.Use(requestLogger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.ForceHTTPS(d.ForceHTTPS))
	r.Use(middleware.Security)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Identify)
		r.Use(chimw.Timeout(30 * time.Second))

		r.Get("/forms", h.listForms)
		r.Route("/forms/{id}", func(r chi.Router) {
			r.Get("/", h.getForm)
			r.Post("/validate", h.validateForm)
			r.Post("/submit", h.submitForm)
		})

		r.Get("/screens", h.listScreens)
		r.Get("/screens/{name}", h.getScreen)
		r.Delete("/screens/{name}/{id}", h.deleteRecord)
		r.Post("/screens/{name}/{id}/{command}", h.runCommand)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
