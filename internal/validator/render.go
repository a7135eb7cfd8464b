package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

var (
	// ErrRender is returned when a renderer cannot produce an image.
	ErrRender = errors.New("render failed")
	// ErrRenderTimeout is returned when the rendering capability does not
	// answer within its timeout.
	ErrRenderTimeout = errors.New("render timed out")
)

// maxRenderBytes bounds a rendered image reply.
const maxRenderBytes = 64 << 20

// Renderer turns an output document back into an image of the page.
type Renderer interface {
	Name() string
	Render(ctx context.Context, artifact *capture.Artifact, doc *component.OutputDocument) (image.Image, error)
}

// CoverageRenderer paints the capture pixels inside every record region on
// a blank canvas. Content the pipeline dropped stays blank and shows up as
// divergence.
type CoverageRenderer struct {
	Background color.Color
}

func (CoverageRenderer) Name() string { return "coverage" }

func (c CoverageRenderer) Render(_ context.Context, artifact *capture.Artifact, doc *component.OutputDocument) (image.Image, error) {
	src, err := artifact.Image()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	bg := c.Background
	if bg == nil {
		bg = color.White
	}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for _, rec := range doc.Records() {
		r := rec.Instance.Region.Clip(b.Dx(), b.Dy())
		if r.Empty() {
			continue
		}
		rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
		draw.Draw(canvas, rect, src, b.Min.Add(rect.Min), draw.Src)
	}

	return canvas, nil
}

// HTTPRenderer posts the canonical document to a rendering service and
// decodes the image it returns.
type HTTPRenderer struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func (h *HTTPRenderer) Name() string { return "http" }

func (h *HTTPRenderer) Render(ctx context.Context, _ *capture.Artifact, doc *component.OutputDocument) (image.Image, error) {
	body, err := canonical.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %w", ErrRender, err)
	}

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png, image/jpeg")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrRenderTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRender, resp.StatusCode, bytes.TrimSpace(msg))
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxRenderBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %w", ErrRender, err)
	}
	return img, nil
}
