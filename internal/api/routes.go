package api

import (
	"net/http"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/config"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/review"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	capturesHandler := capture.NewHandler(domain.Captures, runtime.Logger, cfg.API.MaxUploadSizeBytes())
	reviewHandler := review.NewHandler(domain.Review, domain.Taxonomy, domain.Runs, runtime.Logger, runtime.Pagination)
	decisionsHandler := decisionlog.NewHandler(domain.Decisions, runtime.Logger, runtime.Pagination)
	taxonomyHandler := taxonomy.NewHandler(domain.Taxonomy, runtime.Logger)
	storageHandler := newStorageHandler(runtime.Storage, runtime.Logger)

	routes.Register(
		mux,
		capturesHandler.Routes(),
		domain.Runs.Handler().Routes(),
		reviewHandler.Routes(),
		decisionsHandler.Routes(),
		taxonomyHandler.Routes(),
		domain.Prompts.Handler().Routes(),
		storageHandler.routes(),
	)
}
