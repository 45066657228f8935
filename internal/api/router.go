package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobstr/harvester/internal/config"
	"github.com/jobstr/harvester/internal/harvest"
	"github.com/jobstr/harvester/internal/store"
)

// Deps are the read-only views the API serves. Archive may be nil.
type Deps struct {
	Config   config.Config
	Npub     string
	Status   *harvest.Status
	Archive  store.Archive
	Gatherer prometheus.Gatherer
}

// NewRouter creates the HTTP router with all v1 endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{cfg: d.Config, npub: d.Npub, status: d.Status, archive: d.Archive, started: time.Now()}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/info", h.GetInfo)
		r.Get("/status", h.GetStatus)
		r.Get("/notes", h.ListNotes)

		r.Get("/archive/notes", h.ListArchivedNotes)
		r.Get("/archive/notes/{noteID}", h.GetArchivedNote)
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

type handlers struct {
	cfg     config.Config
	npub    string
	status  *harvest.Status
	archive store.Archive
	started time.Time
}
