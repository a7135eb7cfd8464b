package api

import (
	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/internal/config"
	"github.com/justinbach/migration-pipeline/internal/infrastructure"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Classifier classifier.Config
	Pipeline   config.PipelineConfig
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Metrics:   infra.Metrics,
		},
		Classifier: cfg.Classifier,
		Pipeline:   cfg.Pipeline,
		Pagination: cfg.API.Pagination,
	}
}
