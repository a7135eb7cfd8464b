// Package capture loads captured webpage bundles: a screenshot, the raw HTML
// and a metadata document. Artifacts are immutable once loaded.
package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"regexp"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Bundle file names.
const (
	ScreenshotFile = "screenshot.png"
	HTMLFile       = "page.html"
	MetadataFile   = "metadata.json"
)

// Default viewport applied when metadata omits one.
const (
	DefaultViewportWidth  = 1440
	DefaultViewportHeight = 900
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Viewport is the browser window size used for the capture.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metrics are page measurements recorded at capture time.
type Metrics struct {
	ScrollWidth  int            `json:"scroll_width,omitempty"`
	ScrollHeight int            `json:"scroll_height,omitempty"`
	Elements     map[string]int `json:"elements,omitempty"`
}

// Metadata describes where and when a page was captured.
type Metadata struct {
	URL        string    `json:"url"`
	Domain     string    `json:"domain,omitempty"`
	Title      string    `json:"title,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Viewport   Viewport  `json:"viewport"`
	Metrics    Metrics   `json:"metrics"`
}

// Artifact is one captured page.
type Artifact struct {
	ID         string   `json:"id"`
	Screenshot []byte   `json:"-"`
	MediaType  string   `json:"media_type"`
	HTML       string   `json:"-"`
	Charset    string   `json:"charset"`
	Metadata   Metadata `json:"metadata"`
}

// ValidID reports whether id is usable as a capture identifier and storage key segment.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Decode assembles an Artifact from raw bundle files. The HTML is converted
// to UTF-8 using its declared or sniffed charset.
func Decode(id string, screenshot, rawHTML, metadata []byte) (*Artifact, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid capture id %q", ErrInvalidBundle, id)
	}
	if len(screenshot) == 0 {
		return nil, fmt.Errorf("%w: %s: empty screenshot", ErrInvalidBundle, id)
	}
	if len(rawHTML) == 0 {
		return nil, fmt.Errorf("%w: %s: empty html", ErrInvalidBundle, id)
	}

	mediaType := http.DetectContentType(screenshot)
	if mediaType != "image/png" && mediaType != "image/jpeg" {
		return nil, fmt.Errorf("%w: %s: unsupported screenshot type %s", ErrInvalidBundle, id, mediaType)
	}

	var meta Metadata
	if len(bytes.TrimSpace(metadata)) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: metadata: %w", ErrInvalidBundle, id, err)
		}
	}
	if err := meta.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidBundle, id, err)
	}

	decoded, name, err := toUTF8(rawHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode %s html: %w", ErrInvalidBundle, id, name, err)
	}

	return &Artifact{
		ID:         id,
		Screenshot: screenshot,
		MediaType:  mediaType,
		HTML:       string(decoded),
		Charset:    name,
		Metadata:   meta,
	}, nil
}

// toUTF8 honors a BOM or meta charset declaration. Undeclared content that
// is already valid UTF-8 is kept as is instead of taking the windows-1252 fallback.
func toUTF8(raw []byte) ([]byte, string, error) {
	enc, name, certain := charset.DetermineEncoding(raw, "text/html")
	if !certain && name == "windows-1252" && utf8.Valid(raw) && !declaresCharset(raw) {
		return raw, "utf-8", nil
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	return decoded, name, err
}

func declaresCharset(raw []byte) bool {
	head := raw[:min(len(raw), 1024)]
	return bytes.Contains(bytes.ToLower(head), []byte("charset"))
}

func (m *Metadata) normalize() error {
	if m.URL != "" {
		u, err := url.Parse(m.URL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("metadata url %q is not absolute", m.URL)
		}
		if m.Domain == "" {
			m.Domain = u.Hostname()
		}
	}
	if m.Viewport.Width <= 0 {
		m.Viewport.Width = DefaultViewportWidth
	}
	if m.Viewport.Height <= 0 {
		m.Viewport.Height = DefaultViewportHeight
	}
	return nil
}

// BaseURL returns the capture URL for resolving relative links, or nil.
func (a *Artifact) BaseURL() *url.URL {
	if a.Metadata.URL == "" {
		return nil
	}
	u, err := url.Parse(a.Metadata.URL)
	if err != nil {
		return nil
	}
	return u
}

// Image decodes the screenshot.
func (a *Artifact) Image() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(a.Screenshot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot %s: %w", a.ID, err)
	}
	return img, nil
}

// Bounds returns the screenshot dimensions without decoding pixel data.
func (a *Artifact) Bounds() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Screenshot))
	if err != nil {
		return 0, 0, fmt.Errorf("decode screenshot config %s: %w", a.ID, err)
	}
	return cfg.Width, cfg.Height, nil
}
