package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

type anthropicClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Classifier for the configured provider. Returns nil when the
// provider is "none"; callers treat a nil Classifier as unavailable.
func New(cfg *Config, logger *slog.Logger) (Classifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required for provider %s", ErrRejected, cfg.Provider)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicClassifier{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.TimeoutDuration(),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), cfg.Burst),
		logger:    logger.With("system", "classifier", "provider", cfg.Provider),
	}, nil
}

// Classify waits for a rate limiter slot, then sends the request bounded by
// the configured timeout. Retries are the caller's concern.
func (a *anthropicClassifier) Classify(ctx context.Context, req Request) (*Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, mapError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if len(req.Image) > 0 {
		mediaType := req.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			mediaType,
			base64.StdEncoding.EncodeToString(req.Image),
		))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	msg, err := a.client.Messages.New(callCtx, params)
	if err != nil {
		a.logger.WarnContext(ctx, "classification call failed",
			"purpose", req.Purpose,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, mapError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	resp := &Response{
		Content:      sb.String(),
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	a.logger.InfoContext(ctx, "classification call complete",
		"purpose", req.Purpose,
		"duration", time.Since(start),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)

	if strings.TrimSpace(resp.Content) == "" {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}
