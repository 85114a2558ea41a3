// Package output turns composed canvases into print files
package output

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/calendarpress/calendar-engine/internal/geometry"
	"github.com/calendarpress/calendar-engine/internal/telemetry"
	"go.uber.org/zap"
)

// Format is an output file format
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatPSD  Format = "psd"
	FormatPDF  Format = "pdf"
)

// ColorSpace is the color model written to the file
type ColorSpace string

const (
	ColorRGB  ColorSpace = "rgb"
	ColorCMYK ColorSpace = "cmyk"
)

// PSD encoder backends accepted by NewWriter
const (
	PSDNative = "native"
	PSDMagick = "magick"
	PSDNone   = "none"
)

const (
	DefaultDPI     = 300
	DefaultQuality = 95
)

// ErrNoEncoder is returned when no encoder is registered for a format
var ErrNoEncoder = errors.New("no encoder for format")

// ParseFormat maps a format name or file extension to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "psd":
		return FormatPSD, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unknown output format: %s", s)
}

// Ext is the file extension for f, dot included
func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// Options describe one file to write
type Options struct {
	Format     Format
	ColorSpace ColorSpace
	DPI        float64
	Quality    int // JPEG quality, 1-100
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = FormatJPEG
	}
	if o.ColorSpace == "" {
		o.ColorSpace = ColorCMYK
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Result describes a written file. Format, ColorSpace and Path report what
// was actually written, which differs from the request after a fallback.
type Result struct {
	Image      image.Image
	Path       string
	Format     Format
	ColorSpace ColorSpace
	DPI        float64
	WidthPx    int
	HeightPx   int
	WidthMM    float64
	HeightMM   float64
	Fallback   bool
}

// Encoder writes an opaque raster. img is *image.CMYK when the writer
// converted to CMYK and *image.RGBA otherwise.
type Encoder interface {
	Name() string
	Supports(cs ColorSpace) bool
	Encode(w io.Writer, img image.Image, opts Options) error
}

// WriterOptions select the encoder backends
type WriterOptions struct {
	PSDEncoder string // native, magick or none
	Quality    int
}

// Writer converts canvases and hands them to the registered encoders
type Writer struct {
	encoders map[Format]Encoder
	quality  int
	log      *zap.Logger
	metrics  *telemetry.Metrics
}

// NewWriter creates a writer with the native encoders and the PSD backend
// named in opts
func NewWriter(opts WriterOptions, log *zap.Logger, metrics *telemetry.Metrics) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{
		encoders: make(map[Format]Encoder),
		quality:  opts.Quality,
		log:      log.With(zap.String("component", "output")),
		metrics:  metrics,
	}

	w.Register(FormatJPEG, jpegEncoder{})
	w.Register(FormatPNG, pngEncoder{})
	w.Register(FormatPDF, pdfEncoder{})

	switch opts.PSDEncoder {
	case PSDNone:
	case PSDMagick:
		psd, ok := newMagickEncoder(FormatPSD)
		if !ok {
			w.log.Warn("imagemagick support not compiled in, psd output will fall back to jpeg")
			break
		}
		jpg, _ := newMagickEncoder(FormatJPEG)
		w.Register(FormatPSD, psd)
		w.Register(FormatJPEG, jpg)
	default:
		w.Register(FormatPSD, psdEncoder{})
	}

	return w
}

// Register adds or replaces the encoder for f
func (w *Writer) Register(f Format, e Encoder) {
	w.encoders[f] = e
}

// Encoder reports the encoder registered for f
func (w *Writer) Encoder(f Format) (Encoder, bool) {
	e, ok := w.encoders[f]
	return e, ok
}

// Write flattens img, converts it to the requested color space and writes
// it to path. A PSD request without a PSD encoder is written as a JPEG next
// to path, suffixed with the color space the JPEG encoder actually wrote
// (_cmyk.jpg, or _rgb.jpg when no CMYK capable JPEG encoder is registered).
func (w *Writer) Write(ctx context.Context, img image.Image, path string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.Quality == DefaultQuality && w.quality > 0 && w.quality <= 100 {
		opts.Quality = w.quality
	}

	res := &Result{Path: path, Format: opts.Format, DPI: opts.DPI}

	enc, ok := w.encoders[opts.Format]
	fallback := !ok && opts.Format == FormatPSD
	if fallback {
		res.Format = FormatJPEG
		res.Fallback = true
		opts.Format = FormatJPEG
		opts.ColorSpace = ColorCMYK
		enc, ok = w.encoders[FormatJPEG]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEncoder, opts.Format)
	}

	if opts.ColorSpace == ColorCMYK && !enc.Supports(ColorCMYK) {
		w.log.Warn("encoder cannot write cmyk, writing rgb",
			zap.String("encoder", enc.Name()),
			zap.String("path", res.Path))
		w.metrics.RecordFallback(ctx, "encoder", "cmyk_rgb")
		opts.ColorSpace = ColorRGB
	}
	res.ColorSpace = opts.ColorSpace

	if fallback {
		res.Path = FallbackPath(path, res.ColorSpace)
		w.log.Warn("psd encoder unavailable, writing "+string(res.ColorSpace)+" jpeg",
			zap.String("requested", path),
			zap.String("path", res.Path),
			zap.String("color_space", string(res.ColorSpace)))
		w.metrics.RecordFallback(ctx, "encoder", "psd_jpeg")
	}

	var raster image.Image = Flatten(img)
	if opts.ColorSpace == ColorCMYK {
		raster = ToCMYK(raster)
	}
	res.Image = raster

	if err := writeFile(res.Path, func(f io.Writer) error {
		return enc.Encode(f, raster, opts)
	}); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", res.Path, err)
	}

	b := raster.Bounds()
	res.WidthPx, res.HeightPx = b.Dx(), b.Dy()
	res.WidthMM = geometry.PxToMM(b.Dx(), opts.DPI)
	res.HeightMM = geometry.PxToMM(b.Dy(), opts.DPI)

	w.log.Debug("file written",
		zap.String("path", res.Path),
		zap.String("format", string(res.Format)),
		zap.String("color_space", string(res.ColorSpace)),
		zap.String("encoder", enc.Name()))

	return res, nil
}

// FallbackPath is where a PSD request lands when written as a JPEG in cs
func FallbackPath(path string, cs ColorSpace) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_" + string(cs) + ".jpg"
}

// Flatten composites img over white into an opaque RGBA buffer
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// ToCMYK converts an opaque image to the CMYK model
func ToCMYK(img image.Image) *image.CMYK {
	b := img.Bounds()
	out := image.NewCMYK(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			c, m, ye, k := color.RGBToCMYK(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			i := out.PixOffset(x, y)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c, m, ye, k
		}
	}
	return out
}

func writeFile(path string, encode func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
