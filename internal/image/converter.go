// Package image derives the stored artifact set from one raw logo. It uses
// bimg (Go bindings for libvips) for rasterization, resizing and encoding;
// libvips rasterizes SVG input through librsvg, so vector logos flow
// through the same pipeline as bitmaps.
package image

import (
	"bytes"

	"github.com/h2non/bimg"
	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
)

// Config sets the rendition matrix.
type Config struct {
	Sizes       []int
	WebPQuality int
}

// Converter implements logo.Converter.
type Converter struct {
	cfg    Config
	logger *zap.Logger
}

// NewConverter builds a Converter.
func NewConverter(cfg Config, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = []int{240, 300}
	}
	if cfg.WebPQuality <= 0 || cfg.WebPQuality > 100 {
		cfg.WebPQuality = 85
	}
	return &Converter{cfg: cfg, logger: logger}
}

type encoding struct {
	name    string
	imgType bimg.ImageType
	quality int
}

// Convert produces one artifact per (size x encoding) pair, plus a verbatim
// "original" entry for vector input. Individual rendition failures are
// skipped; if everything fails the raw bytes come back under "original" so
// the caller never receives an empty map for non-empty input.
func (c *Converter) Convert(data []byte) map[string][]byte {
	results := make(map[string][]byte)
	if len(data) == 0 {
		return results
	}

	source := data
	if IsVector(data) {
		// The vector original is preserved bit-exact regardless of what
		// the raster pipeline manages to produce from it.
		results[logo.OriginalKeySuffix] = data
		rasterized, err := bimg.NewImage(data).Convert(bimg.PNG)
		if err != nil {
			c.logger.Warn("svg rasterization failed, keeping original only", zap.Error(err))
			return results
		}
		source = rasterized
	}

	encodings := []encoding{
		{name: "png", imgType: bimg.PNG, quality: 100},
		{name: "webp", imgType: bimg.WEBP, quality: c.cfg.WebPQuality},
	}
	for _, size := range c.cfg.Sizes {
		for _, enc := range encodings {
			rendition, err := renderSquare(source, size, enc)
			if err != nil {
				c.logger.Warn("rendition encode failed",
					zap.String("format", enc.name),
					zap.Int("size", size),
					zap.Error(err),
				)
				continue
			}
			results[logo.RenditionKey(enc.name, size)] = rendition
		}
	}

	if len(results) == 0 {
		// Undecodable input still produces a preserved original.
		results[logo.OriginalKeySuffix] = data
	}
	return results
}

// renderSquare resizes to a square canvas with libvips' Lanczos resampling
// and encodes in the requested format.
func renderSquare(data []byte, size int, enc encoding) ([]byte, error) {
	return bimg.NewImage(data).Process(bimg.Options{
		Width:          size,
		Height:         size,
		Type:           enc.imgType,
		Quality:        enc.quality,
		Embed:          true,
		Enlarge:        true,
		Interpretation: bimg.InterpretationSRGB,
	})
}

// IsVector reports whether the bytes start with SVG or XML markup.
func IsVector(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<svg")) || bytes.HasPrefix(trimmed, []byte("<?xml"))
}

var _ logo.Converter = (*Converter)(nil)
