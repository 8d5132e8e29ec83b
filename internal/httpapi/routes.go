package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
)

// History is the tracker surface the API exposes.
type History interface {
	ResolveHash(ctx context.Context, prefix string) (string, error)
	GetHistory(ctx context.Context, opts engine.HistoryOptions) []model.Commit
	GetCommitDetails(ctx context.Context, hash string) (engine.CommitDetails, bool)
	GetEntityHistory(ctx context.Context, entityType model.EntityType, entityID string) []model.ChangeRecord
	GetObjectHistory(ctx context.Context, objectID string, limit int) []engine.CommitDetails
	GetRecentActivity(ctx context.Context, limit int) []model.ChangeRecord
	VerifyIntegrity(ctx context.Context) engine.IntegrityReport
	RestoreFromHistory(ctx context.Context, hash string) (engine.RestoreResult, error)
	ExportHistory(ctx context.Context, opts engine.ExportOptions) (engine.ExportBundle, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string // CORS origins; empty allows none
	Logger         *slog.Logger
	Timeout        time.Duration // Per-request timeout, default 30s
}

// NewRouter builds the viewer API handler.
func NewRouter(h History, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	api := &handler{history: h, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/history", api.listHistory)
		r.Get("/commits/{hash}", api.getCommit)
		r.Get("/entities/{type}/{id}", api.getEntity)
		r.Get("/objects/{id}", api.getObject)
		r.Get("/recent", api.listRecent)
		r.Get("/verify", api.verify)
		r.Post("/restore/{hash}", api.restore)
		r.Get("/export", api.export)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not_found", "endpoint not found")
	})
	return r
}
