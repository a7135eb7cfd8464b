// Command pipeline runs captures from a local directory through the
// migration pipeline without a database. Review items are held in memory,
// decision logs are written beside each run workspace and outputs are
// published to a local blob root.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/internal/config"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/extractor"
	"github.com/justinbach/migration-pipeline/internal/mapper"
	"github.com/justinbach/migration-pipeline/internal/pipeline"
	"github.com/justinbach/migration-pipeline/internal/review"
	"github.com/justinbach/migration-pipeline/internal/segmenter"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/internal/validator"
	"github.com/justinbach/migration-pipeline/internal/workspace"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/storage"
)

var classifierEnv = &classifier.Env{
	Provider:          "PIPELINE_CLASSIFIER_PROVIDER",
	APIKey:            "PIPELINE_CLASSIFIER_API_KEY",
	BaseURL:           "PIPELINE_CLASSIFIER_BASE_URL",
	Model:             "PIPELINE_CLASSIFIER_MODEL",
	MaxTokens:         "PIPELINE_CLASSIFIER_MAX_TOKENS",
	Timeout:           "PIPELINE_CLASSIFIER_TIMEOUT",
	RequestsPerMinute: "PIPELINE_CLASSIFIER_REQUESTS_PER_MINUTE",
	Burst:             "PIPELINE_CLASSIFIER_BURST",
}

var pageCfg = pagination.Config{DefaultPageSize: 50, MaxPageSize: 500}

func main() {
	var cfg config.PipelineConfig
	if err := cfg.Finalize(); err != nil {
		log.Fatalf("pipeline config: %v", err)
	}

	var (
		captures  = flag.String("captures", "captures", "Directory holding one subdirectory per capture")
		tax       = flag.String("taxonomy", cfg.TaxonomyDir, "Directory of taxonomy entry files")
		root      = flag.String("workspace", cfg.Workspace, "Run workspace root")
		out       = flag.String("out", "", "Local blob root for published outputs (default <workspace>/published)")
		logFile   = flag.String("log", "", "Append every decision log entry to this JSONL file")
		threshold = flag.Float64("threshold", cfg.Threshold, "Validation score threshold")
		workers   = flag.Int("workers", cfg.Workers, "Concurrent runs")
		renderer  = flag.String("renderer", cfg.RendererURL, "Render service URL (default: coverage renderer)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *out == "" {
		*out = filepath.Join(*root, "published")
	}

	rt, err := buildRuntime(&cfg, logger, runtimeOptions{
		taxonomy: *tax,
		captures: *captures,
		root:     *root,
		out:      *out,
		logFile:  *logFile,
		workers:  *workers,
		renderer: *renderer,
	})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := pipeline.RunBatch(ctx, rt, flag.Args(), pipeline.Options{Threshold: *threshold})
	if err != nil {
		logger.Error("batch interrupted", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		log.Fatalf("write summary: %v", err)
	}

	os.Exit(exitCode(items, err))
}

type runtimeOptions struct {
	taxonomy string
	captures string
	root     string
	out      string
	logFile  string
	workers  int
	renderer string
}

func buildRuntime(cfg *config.PipelineConfig, logger *slog.Logger, opts runtimeOptions) (*pipeline.Runtime, error) {
	registry, err := taxonomy.LoadDir(opts.taxonomy)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %w", err)
	}

	var cc classifier.Config
	if err := cc.Finalize(classifierEnv); err != nil {
		return nil, fmt.Errorf("classifier config: %w", err)
	}
	c, err := classifier.New(&cc, logger)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	output, err := storage.New(&storage.Config{Backend: storage.BackendLocal, Root: opts.out}, logger)
	if err != nil {
		return nil, fmt.Errorf("output storage: %w", err)
	}

	var stores []decisionlog.Store
	if opts.logFile != "" {
		stores = append(stores, decisionlog.NewFileStore(opts.logFile, pageCfg))
	}

	var r validator.Renderer
	if opts.renderer != "" {
		r = &validator.HTTPRenderer{URL: opts.renderer, Timeout: cfg.RenderTimeoutDuration()}
	}

	queue := review.NewMemoryQueue(pageCfg)

	return &pipeline.Runtime{
		Registry:   registry,
		Captures:   capture.NewDirSource(opts.captures),
		Segmenter:  segmenter.New(c, nil, cfg.Segmenter(), logger),
		Mapper:     mapper.New(registry, c, nil, queue, cfg.Mapper(), logger),
		Extractor:  extractor.New(logger),
		Validator:  validator.New(r, cfg.Validator(), logger),
		Queue:      queue,
		Workspace:  workspace.New(opts.root),
		Output:     output,
		Stores:     stores,
		FileLog:    true,
		LogTimeout: cfg.LogTimeoutDuration(),
		Pagination: pageCfg,
		Logger:     logger.With("system", "pipeline"),
		Workers:    opts.workers,
	}, nil
}

// exitCode is 1 when the batch was interrupted or any run aborted, and 0
// otherwise. Runs awaiting review or failing validation still exit 0.
func exitCode(items []pipeline.BatchItem, err error) int {
	if err != nil {
		return 1
	}
	for _, item := range items {
		if item.Error != "" || item.Result == nil || item.Result.Status == pipeline.StatusAborted {
			return 1
		}
	}
	return 0
}
