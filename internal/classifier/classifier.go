// Package classifier wraps the vision-capable inference capability used by the
// segmenter and mapper behind a fixed request/response contract.
package classifier

import "context"

// Purpose tags a request with the pipeline call site that issued it.
type Purpose string

// Call sites.
const (
	PurposeSegment Purpose = "segment"
	PurposeMap     Purpose = "map"
)

// Request is one call to the capability. Image is optional.
type Request struct {
	Purpose   Purpose
	Image     []byte
	MediaType string
	System    string
	Prompt    string
}

// Response carries the raw text reply and usage metadata.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Classifier is the external classification capability.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
