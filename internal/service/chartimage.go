package service

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoder

	"github.com/DukeRupert/tradeflow/internal/domain"
)

const (
	// DefaultChartMaxDimension is the longest edge, in pixels, sent to the analyzer.
	DefaultChartMaxDimension = 1568

	// DefaultChartMaxPixels caps the decoded size of an upload. A small
	// compressed file can declare dimensions far beyond what it carries.
	DefaultChartMaxPixels = 40_000_000
)

// ChartImage is a validated chart, re-encoded as PNG.
type ChartImage struct {
	Data           []byte
	ContentType    string
	SourceFormat   string
	OriginalWidth  int
	OriginalHeight int
}

// ChartNormalizer decodes uploads and scales them to fit the analyzer's
// input size.
type ChartNormalizer struct {
	maxDimension int
	maxPixels    int64
}

// NewChartNormalizer returns a normalizer that fits images within
// maxDimension on both edges and refuses to decode images larger than
// maxPixels. Non-positive values use the defaults.
func NewChartNormalizer(maxDimension, maxPixels int) *ChartNormalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultChartMaxDimension
	}
	if maxPixels <= 0 {
		maxPixels = DefaultChartMaxPixels
	}
	return &ChartNormalizer{maxDimension: maxDimension, maxPixels: int64(maxPixels)}
}

// Normalize decodes data, applies EXIF orientation, downsizes when either
// edge exceeds the limit and re-encodes as PNG. Undecodable input is an
// invalid error; images over the pixel budget are rejected as too large
// before any pixel data is decoded.
func (n *ChartNormalizer) Normalize(data io.Reader) (*ChartImage, error) {
	const op = "chart.normalize"

	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to read upload")
	}
	if len(raw) == 0 {
		return nil, domain.Invalid(op, "Uploaded file is empty")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.Invalid(op, "Uploaded file is not a supported image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, domain.Invalid(op, "Uploaded image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > n.maxPixels {
		return nil, domain.Errorf(domain.ETOOLARGE, op,
			"Image dimensions %dx%d exceed the %d pixel limit", cfg.Width, cfg.Height, n.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, domain.Invalid(op, "Uploaded file is not a supported image")
	}

	bounds := img.Bounds()
	if bounds.Dx() > n.maxDimension || bounds.Dy() > n.maxDimension {
		img = imaging.Fit(img, n.maxDimension, n.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, domain.Internal(fmt.Errorf("encode png: %w", err), op, "Failed to process image")
	}

	return &ChartImage{
		Data:           buf.Bytes(),
		ContentType:    "image/png",
		SourceFormat:   format,
		OriginalWidth:  cfg.Width,
		OriginalHeight: cfg.Height,
	}, nil
}
