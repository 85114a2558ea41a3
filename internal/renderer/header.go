package renderer

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"go.uber.org/zap"
)

// headerImage cover-fits the header asset to width x height: scaled to
// fill, then center-cropped. Nil when there is no usable header.
func (s *render) headerImage(ctx context.Context, width, height int) *image.NRGBA {
	if s.cal.HeaderImage == "" {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "calendar.header")
	defer span.End()

	img, err := s.assets.Resolve(ctx, s.cal.HeaderImage)
	if err != nil {
		s.warn(ctx, "header", "header image unavailable, using fallback fill",
			zap.String("ref", s.cal.HeaderImage), zap.Error(err))
		return nil
	}
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

// year draws the year label onto header, whose bounds are region.
// Description coordinates are relative to the header's top-left corner
// and address the top of the text.
func (s *render) year(ctx context.Context, header *image.RGBA, region image.Rectangle) {
	y := s.cal.Year
	if y == nil || y.Text == "" {
		return
	}

	_, span := s.tracer.Start(ctx, "calendar.year")
	defer span.End()

	g := s.opts.Geometry
	size := g.Px(y.Size)
	face, f := s.fonts.Face(y.Font, size)
	defer face.Close()

	stroke := 0.0
	if y.Bold {
		stroke = BoldStroke(size, s.opts.BoldDivisor)
	}

	dc := gg.NewContextForRGBA(header)
	x := float64(region.Min.X) + g.Px(y.X) + stroke
	top := float64(region.Min.Y) + g.Px(y.Y)
	baseline := top + fixedToFloat(face.Metrics().Ascent) + stroke

	drawLine(dc, f, face, size, y.Text, x, baseline, stroke, HexToRGB(y.Color))
}
