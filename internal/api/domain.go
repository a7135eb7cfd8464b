package api

import (
	"fmt"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/extractor"
	"github.com/justinbach/migration-pipeline/internal/mapper"
	"github.com/justinbach/migration-pipeline/internal/pipeline"
	"github.com/justinbach/migration-pipeline/internal/prompts"
	"github.com/justinbach/migration-pipeline/internal/review"
	"github.com/justinbach/migration-pipeline/internal/runs"
	"github.com/justinbach/migration-pipeline/internal/segmenter"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/internal/validator"
	"github.com/justinbach/migration-pipeline/internal/workspace"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Captures  *capture.StoreSource
	Taxonomy  *taxonomy.Registry
	Prompts   prompts.System
	Review    review.Queue
	Decisions decisionlog.Store
	Runs      runs.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()
	cfg := runtime.Pipeline

	registry, err := taxonomy.LoadDir(cfg.TaxonomyDir)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %w", err)
	}

	c, err := classifier.New(&runtime.Classifier, runtime.Logger)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	if c == nil {
		runtime.Logger.Warn("classifier disabled; segmentation will fail and mapping is lexical only")
	}

	captures := capture.NewStoreSource(runtime.Storage, runtime.Logger)
	promptsSystem := prompts.New(db, runtime.Logger, runtime.Pagination)
	queue := review.NewRepository(db, runtime.Logger, runtime.Pagination)
	decisions := decisionlog.NewRepository(db, runtime.Logger, runtime.Pagination)

	var renderer validator.Renderer
	if cfg.RendererURL != "" {
		renderer = &validator.HTTPRenderer{
			URL:     cfg.RendererURL,
			Timeout: cfg.RenderTimeoutDuration(),
		}
	}

	rt := pipeline.Runtime{
		Registry:   registry,
		Captures:   captures,
		Segmenter:  segmenter.New(c, promptsSystem, cfg.Segmenter(), runtime.Logger),
		Mapper:     mapper.New(registry, c, promptsSystem, queue, cfg.Mapper(), runtime.Logger),
		Extractor:  extractor.New(runtime.Logger),
		Validator:  validator.New(renderer, cfg.Validator(), runtime.Logger),
		Queue:      queue,
		Workspace:  workspace.New(cfg.Workspace),
		Output:     runtime.Storage,
		Stores:     []decisionlog.Store{decisions},
		FileLog:    cfg.FileLog,
		LogTimeout: cfg.LogTimeoutDuration(),
		Pagination: runtime.Pagination,
		Metrics:    pipeline.NewMetrics(runtime.Metrics),
		Logger:     runtime.Logger.With("system", "pipeline"),
		Workers:    cfg.Workers,
	}

	return &Domain{
		Captures:  captures,
		Taxonomy:  registry,
		Prompts:   promptsSystem,
		Review:    queue,
		Decisions: decisions,
		Runs:      runs.New(db, rt, runtime.Logger, runtime.Pagination),
	}, nil
}
