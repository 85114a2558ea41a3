// Package renderer composes calendar descriptions into raster canvases
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/calendarpress/calendar-engine/internal/geometry"
	"github.com/calendarpress/calendar-engine/internal/telemetry"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MissingHeaderPolicy decides what fills the header when no image is set
type MissingHeaderPolicy string

const (
	// MissingHeaderBackground lets the backing background show in the header
	MissingHeaderBackground MissingHeaderPolicy = "background"
	// MissingHeaderWhite paints the header white
	MissingHeaderWhite MissingHeaderPolicy = "white"
)

// ErrBackgroundUnavailable marks an image background that could not be loaded
var ErrBackgroundUnavailable = errors.New("background image unavailable")

// RenderError reports the stage (and field, if any) where a render failed
type RenderError struct {
	Stage string
	Field string
	Err   error
}

func (e *RenderError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("render %s stage (%s): %v", e.Stage, e.Field, e.Err)
	}
	return fmt.Sprintf("render %s stage: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Options configure a Renderer
type Options struct {
	Geometry         geometry.Geometry
	BoldDivisor      float64
	MissingHeader    MissingHeaderPolicy
	TransitionHeight int // combined mode: header fades into the background over this many px
	Metrics          *telemetry.Metrics
}

// Composite is the finished canvas set for one calendar.
// Split mode fills Header and Backing, combined mode fills Combined.
type Composite struct {
	Mode     calendarformat.Mode
	Geometry geometry.Geometry
	Header   *image.RGBA
	Backing  *image.RGBA
	Combined *image.RGBA
	Warnings []string
}

// Renderer converts calendar descriptions to images. It holds no per-render
// state, so one Renderer may serve concurrent renders.
type Renderer struct {
	opts   Options
	fonts  *FontResolver
	assets AssetResolver
	log    *zap.Logger
	tracer trace.Tracer
}

// New creates a renderer
func New(opts Options, fonts *FontResolver, assets AssetResolver, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BoldDivisor <= 0 {
		opts.BoldDivisor = DefaultBoldDivisor
	}
	if opts.MissingHeader == "" {
		opts.MissingHeader = MissingHeaderBackground
	}
	if fonts == nil {
		fonts = NewFontResolver("", SystemFonts, log)
	}
	if assets == nil {
		assets = NewLoader(DefaultFetchTimeout, log)
	}
	return &Renderer{
		opts:   opts,
		fonts:  fonts,
		assets: assets,
		log:    log.With(zap.String("component", "renderer")),
		tracer: otel.Tracer("github.com/calendarpress/calendar-engine/internal/renderer"),
	}
}

// Geometry returns the layout this renderer draws
func (r *Renderer) Geometry() geometry.Geometry {
	return r.opts.Geometry
}

// render carries the per-call state of one Render
type render struct {
	*Renderer
	cal      *calendarformat.Calendar
	warnings []string
}

func (s *render) warn(ctx context.Context, kind, msg string, fields ...zap.Field) {
	s.log.Warn(msg, append(fields, zap.String("calendar", s.cal.ID))...)
	s.warnings = append(s.warnings, msg)
	s.opts.Metrics.RecordFallback(ctx, kind, "skipped")
}

// Render composes cal according to the configured geometry
func (r *Renderer) Render(ctx context.Context, cal *calendarformat.Calendar) (*Composite, error) {
	g := r.opts.Geometry
	if err := g.Validate(); err != nil {
		return nil, &RenderError{Stage: "init", Err: err}
	}

	ctx, span := r.tracer.Start(ctx, "calendar.render", trace.WithAttributes(
		attribute.String("calendar.id", cal.ID),
		attribute.String("calendar.mode", string(cal.Mode)),
		attribute.String("geometry", g.Name),
	))
	defer span.End()

	s := &render{Renderer: r, cal: cal}
	out := &Composite{Mode: cal.Mode, Geometry: g}

	var err error
	if cal.Mode == calendarformat.ModeCombined {
		out.Combined, err = s.combined(ctx)
	} else {
		out.Header, out.Backing, err = s.split(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out.Warnings = s.warnings
	return out, nil
}

func (s *render) split(ctx context.Context) (*image.RGBA, *image.RGBA, error) {
	g := s.opts.Geometry

	backing, err := s.background(ctx, g.BackingWidth, g.BackingHeight())
	if err != nil {
		return nil, nil, err
	}
	s.segments(ctx, backing, image.Point{})

	header := image.NewRGBA(image.Rect(0, 0, g.HeaderWidth, g.HeaderHeight))
	if img := s.headerImage(ctx, g.HeaderWidth, g.HeaderHeight); img != nil {
		draw.Draw(header, header.Bounds(), img, image.Point{}, draw.Src)
	} else if s.opts.MissingHeader == MissingHeaderWhite {
		draw.Draw(header, header.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	} else {
		fill, err := s.background(ctx, g.HeaderWidth, g.HeaderHeight)
		if err != nil {
			return nil, nil, err
		}
		header = fill
	}
	s.year(ctx, header, header.Bounds())

	return header, backing, nil
}

func (s *render) combined(ctx context.Context) (*image.RGBA, error) {
	g := s.opts.Geometry
	w, h := g.CombinedSize()

	canvas, err := s.background(ctx, w, h)
	if err != nil {
		return nil, err
	}

	headerRect := image.Rect(0, 0, w, g.HeaderHeight)
	if img := s.headerImage(ctx, w, g.HeaderHeight); img != nil {
		draw.DrawMask(canvas, headerRect, img, image.Point{}, transitionMask(headerRect, s.opts.TransitionHeight), image.Point{}, draw.Over)
	} else if s.opts.MissingHeader == MissingHeaderWhite {
		draw.Draw(canvas, headerRect, image.NewUniform(white), image.Point{}, draw.Src)
	}

	s.segments(ctx, canvas, image.Pt(0, g.HeaderHeight))
	s.year(ctx, canvas.SubImage(headerRect).(*image.RGBA), headerRect)

	return canvas, nil
}

// background returns the resolved fill at exactly width x height
func (s *render) background(ctx context.Context, width, height int) (*image.RGBA, error) {
	ctx, span := s.tracer.Start(ctx, "calendar.background")
	defer span.End()

	var fill image.Image
	switch bg := s.cal.Background.(type) {
	case calendarformat.ImageBackground:
		img, err := s.assets.Resolve(ctx, bg.Source)
		if err != nil {
			return nil, &RenderError{
				Stage: "background",
				Field: bg.Source,
				Err:   fmt.Errorf("%w: %v", ErrBackgroundUnavailable, err),
			}
		}
		fill = imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	default:
		img, err := Fill(width, height, bg)
		if err != nil {
			return nil, &RenderError{Stage: "background", Err: err}
		}
		fill = img
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), fill, image.Point{}, draw.Src)
	return canvas, nil
}

// transitionMask is opaque except for a linear fade over the bottom
// height rows of rect
func transitionMask(rect image.Rectangle, height int) image.Image {
	if height <= 0 {
		return nil
	}
	if height > rect.Dy() {
		height = rect.Dy()
	}
	mask := image.NewAlpha(rect)
	start := rect.Max.Y - height
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		a := uint8(255)
		if y >= start {
			a = uint8(255 * float64(rect.Max.Y-y) / float64(height))
		}
		row := mask.Pix[(y-rect.Min.Y)*mask.Stride : (y-rect.Min.Y)*mask.Stride+rect.Dx()]
		for i := range row {
			row[i] = a
		}
	}
	return mask
}
