package validator

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"math"
	"slices"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyImage is returned when either image has no pixels to compare.
var ErrEmptyImage = errors.New("image has no comparable area")

// SSIM stabilizers for 8-bit data.
var (
	c1 = math.Pow(0.01*255, 2)
	c2 = math.Pow(0.03*255, 2)
)

// Options controls a comparison.
type Options struct {
	Window     int
	Sections   int
	Tolerance  int
	NoiseFloor float64
}

// Comparison is the pure result of comparing two images.
type Comparison struct {
	Compared      Size
	Score         float64
	Pixels        PixelStats
	Sections      []Section
	Discrepancies []Discrepancy
}

// Compare scales rendered to the width of source, crops both to the shorter
// height and scores them with grayscale SSIM over square windows. The same
// inputs always produce the same result.
func Compare(source, rendered image.Image, opts Options) (*Comparison, error) {
	if source.Bounds().Empty() || rendered.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	opts = opts.withDefaults()

	src := toRGBA(source)
	gen := scaleToWidth(rendered, src.Bounds().Dx())

	width := src.Bounds().Dx()
	height := min(src.Bounds().Dy(), gen.Bounds().Dy())
	if height < 1 {
		return nil, ErrEmptyImage
	}

	srcGray := grayscale(src, width, height)
	genGray := grayscale(gen, width, height)

	result := &Comparison{
		Compared: Size{Width: width, Height: height},
		Pixels:   pixelStats(src, gen, width, height, opts.Tolerance),
	}

	sections := min(opts.Sections, height)
	bandHeight := height / sections

	var total float64
	var windows int
	for i := range sections {
		y0 := i * bandHeight
		y1 := y0 + bandHeight
		if i == sections-1 {
			y1 = height
		}

		sum, n := ssim(srcGray, genGray, width, y0, y1, opts.Window)
		total += sum
		windows += n

		score := round(clamp01(sum / float64(n)))
		rect := image.Rect(0, y0, width, y1)
		result.Sections = append(result.Sections, Section{
			Index:          i + 1,
			Region:         regionOf(rect),
			Score:          score,
			Interpretation: Interpret(score),
		})

		if severity := round(1 - score); severity > opts.NoiseFloor {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Region:   regionOf(rect),
				Severity: severity,
				Label:    SeverityLabel(severity),
				Kind:     KindSection,
				Detail:   fmt.Sprintf("section %d of %d (y %d-%d) similarity %.3f", i+1, sections, y0, y1, score),
			})
		}
	}

	result.Score = round(clamp01(total / float64(windows)))

	slices.SortStableFunc(result.Discrepancies, func(a, b Discrepancy) int {
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.Region.Y, b.Region.Y)
	})

	return result, nil
}

// Worst returns section indexes ordered from least to most similar.
func (c *Comparison) Worst() []int {
	sections := slices.Clone(c.Sections)
	slices.SortStableFunc(sections, func(a, b Section) int {
		return cmp.Compare(a.Score, b.Score)
	})
	out := make([]int, len(sections))
	for i, s := range sections {
		out[i] = s.Index
	}
	return out
}

func (o Options) withDefaults() Options {
	if o.Window < 2 {
		o.Window = 8
	}
	if o.Sections < 1 {
		o.Sections = 5
	}
	if o.Tolerance < 1 {
		o.Tolerance = 30
	}
	return o
}

// ssim sums the SSIM of every window tiling rows [y0, y1) and returns the
// window count. Edge windows are truncated; windows narrower than two
// pixels in either direction merge into their neighbor.
func ssim(a, b []float64, width, y0, y1, window int) (float64, int) {
	xs := spans(0, width, window)
	ys := spans(y0, y1, window)

	bufA := make([]float64, 0, window*window*4)
	bufB := make([]float64, 0, window*window*4)

	var sum float64
	var n int
	for _, y := range ys {
		for _, x := range xs {
			bufA, bufB = bufA[:0], bufB[:0]
			for row := y[0]; row < y[1]; row++ {
				off := row * width
				bufA = append(bufA, a[off+x[0]:off+x[1]]...)
				bufB = append(bufB, b[off+x[0]:off+x[1]]...)
			}
			sum += windowSSIM(bufA, bufB)
			n++
		}
	}
	return sum, n
}

func windowSSIM(a, b []float64) float64 {
	if len(a) < 2 {
		if a[0] == b[0] {
			return 1
		}
		return 0
	}
	muA, varA := stat.MeanVariance(a, nil)
	muB, varB := stat.MeanVariance(b, nil)
	cov := stat.Covariance(a, b, nil)

	return ((2*muA*muB + c1) * (2*cov + c2)) /
		((muA*muA + muB*muB + c1) * (varA + varB + c2))
}

// spans splits [lo, hi) into consecutive ranges of size step; a trailing
// range shorter than two joins the previous one.
func spans(lo, hi, step int) [][2]int {
	var out [][2]int
	for start := lo; start < hi; start += step {
		end := min(start+step, hi)
		if end-start < 2 && len(out) > 0 {
			out[len(out)-1][1] = end
			break
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func pixelStats(a, b *image.RGBA, width, height, tolerance int) PixelStats {
	var (
		sum    float64
		maxd   int
		within int
	)
	for y := range height {
		rowA := a.Pix[y*a.Stride : y*a.Stride+width*4]
		rowB := b.Pix[y*b.Stride : y*b.Stride+width*4]
		for x := 0; x < width*4; x += 4 {
			ok := true
			for c := range 3 {
				d := int(rowA[x+c]) - int(rowB[x+c])
				if d < 0 {
					d = -d
				}
				sum += float64(d)
				maxd = max(maxd, d)
				if d >= tolerance {
					ok = false
				}
			}
			if ok {
				within++
			}
		}
	}

	pixels := width * height
	return PixelStats{
		MeanDiff:        round(sum / float64(pixels*3)),
		MaxDiff:         maxd,
		WithinTolerance: round(float64(within) / float64(pixels) * 100),
		Tolerance:       tolerance,
	}
}

// grayscale returns the channel mean of the top-left width x height area.
func grayscale(img *image.RGBA, width, height int) []float64 {
	out := make([]float64, width*height)
	for y := range height {
		row := img.Pix[y*img.Stride:]
		for x := range width {
			p := row[x*4:]
			out[y*width+x] = (float64(p[0]) + float64(p[1]) + float64(p[2])) / 3
		}
	}
	return out
}

// toRGBA copies img into an RGBA image anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func scaleToWidth(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == width {
		return toRGBA(img)
	}
	height := max(1, int(math.Round(float64(b.Dy())*float64(width)/float64(b.Dx()))))
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}

func round(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
