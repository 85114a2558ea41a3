package renderer

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"github.com/fogleman/gg"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

var (
	boxBorderColor  = HexToRGB("#e5e7eb")
	monthLabelColor = HexToRGB("#1d4ed8")
	gridLabelColor  = HexToRGB("#9ca3af")
)

var gridPlaceholder = map[string]string{
	"pl": "[Siatka dni]",
	"en": "[Day grid]",
}

// segments draws the three month boxes and advertising strips onto canvas.
// origin is the top-left corner of the backing region inside canvas.
func (s *render) segments(ctx context.Context, canvas *image.RGBA, origin image.Point) {
	ctx, span := s.tracer.Start(ctx, "calendar.segments")
	defer span.End()

	g := s.opts.Geometry
	dc := gg.NewContextForRGBA(canvas)

	for i := range s.cal.Segments {
		s.monthBox(dc, i, g.MonthBox(i).Add(origin))

		rect := g.Strip(i).Add(origin)
		strip := s.strip(ctx, i, rect.Size())
		draw.Draw(canvas, rect, strip, image.Point{}, draw.Over)
	}
}

// monthBox draws the white calendar box with its month and grid labels
func (s *render) monthBox(dc *gg.Context, i int, box image.Rectangle) {
	g := s.opts.Geometry
	bw := float64(g.BorderWidth)

	dc.DrawRectangle(float64(box.Min.X)+bw/2, float64(box.Min.Y)+bw/2, float64(box.Dx())-bw, float64(box.Dy())-bw)
	dc.SetColor(white)
	dc.FillPreserve()
	dc.SetColor(boxBorderColor)
	dc.SetLineWidth(bw)
	dc.Stroke()

	label := s.cal.MonthLabel(i)
	face, f := s.fonts.Face(calendarformat.DefaultFont, g.MonthLabelSize)
	block := Layout(label, float64(box.Dx()), face, 0)
	top := box.Min.Y + g.MonthLabelTop
	region := image.Rect(box.Min.X, top, box.Max.X, top+int(block.Height()+0.5))
	DrawBlock(dc, block, f, face, g.MonthLabelSize, region, monthLabelColor)
	face.Close()

	placeholder, ok := gridPlaceholder[s.cal.Locale]
	if !ok {
		placeholder = gridPlaceholder[calendarformat.DefaultLocale]
	}
	face, f = s.fonts.Face(calendarformat.DefaultFont, g.GridLabelSize)
	block = Layout(placeholder, float64(box.Dx()), face, 0)
	DrawBlock(dc, block, f, face, g.GridLabelSize, box, gridLabelColor)
	face.Close()
}

// strip renders segment i's fields into a transparent buffer of exactly
// size. Anything drawn outside the buffer is discarded.
func (s *render) strip(ctx context.Context, i int, size image.Point) *image.RGBA {
	buf := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	dc := gg.NewContextForRGBA(buf)

	for j, field := range s.cal.Segments[i].Fields {
		name := fmt.Sprintf("segment[%d].field[%d]", i, j)
		switch f := field.(type) {
		case calendarformat.TextField:
			s.stripText(dc, f, buf.Bounds())
		case calendarformat.ImageField:
			s.stripImage(ctx, buf, f, name)
		case calendarformat.CodeField:
			s.stripCode(ctx, buf, f, name)
		}
	}

	return buf
}

func (s *render) stripText(dc *gg.Context, f calendarformat.TextField, region image.Rectangle) {
	size := s.opts.Geometry.Px(f.Size)
	face, tf := s.fonts.Face(f.Font, size)
	defer face.Close()

	stroke := 0.0
	if f.Bold {
		stroke = BoldStroke(size, s.opts.BoldDivisor)
	}

	block := Layout(f.Text, float64(region.Dx()), face, stroke)
	DrawBlock(dc, block, tf, face, size, region, HexToRGB(f.Color))
}

// stripImage resizes the overlay by its scale and pastes it at its offset.
// A missing overlay is skipped, leaving the strip as if it had none.
func (s *render) stripImage(ctx context.Context, buf *image.RGBA, f calendarformat.ImageField, name string) {
	img, err := s.assets.Resolve(ctx, f.Source)
	if err != nil {
		s.warn(ctx, "overlay", "overlay image unavailable, skipping",
			zap.String("field", name), zap.String("ref", f.Source), zap.Error(err))
		return
	}

	g := s.opts.Geometry
	scale := g.Px(f.Scale)
	b := img.Bounds()
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	at := image.Pt(int(g.Px(float64(f.OffsetX))), int(g.Px(float64(f.OffsetY))))
	src, dst, ok := visiblePart(b, image.Rectangle{Min: at, Max: at.Add(image.Pt(w, h))}, buf.Bounds())
	if !ok {
		return
	}
	xdraw.CatmullRom.Scale(buf, dst, img, src, xdraw.Over, nil)
}

// visiblePart maps the part of placed that falls inside clip back to the
// source pixels b that cover it. dst is where those source pixels land when
// b is stretched over placed; it may overhang clip by less than one source
// pixel and the scaler clips the rest.
func visiblePart(b, placed, clip image.Rectangle) (src, dst image.Rectangle, ok bool) {
	visible := placed.Intersect(clip)
	if visible.Empty() || b.Empty() {
		return image.Rectangle{}, image.Rectangle{}, false
	}

	sx := float64(b.Dx()) / float64(placed.Dx())
	sy := float64(b.Dy()) / float64(placed.Dy())
	src = image.Rect(
		b.Min.X+int(math.Floor(float64(visible.Min.X-placed.Min.X)*sx)),
		b.Min.Y+int(math.Floor(float64(visible.Min.Y-placed.Min.Y)*sy)),
		b.Min.X+int(math.Ceil(float64(visible.Max.X-placed.Min.X)*sx)),
		b.Min.Y+int(math.Ceil(float64(visible.Max.Y-placed.Min.Y)*sy)),
	).Intersect(b)
	if src.Empty() {
		return image.Rectangle{}, image.Rectangle{}, false
	}

	dst = image.Rect(
		placed.Min.X+int(math.Round(float64(src.Min.X-b.Min.X)/sx)),
		placed.Min.Y+int(math.Round(float64(src.Min.Y-b.Min.Y)/sy)),
		placed.Min.X+int(math.Round(float64(src.Max.X-b.Min.X)/sx)),
		placed.Min.Y+int(math.Round(float64(src.Max.Y-b.Min.Y)/sy)),
	)
	return src, dst, !dst.Empty()
}

func (s *render) stripCode(ctx context.Context, buf *image.RGBA, f calendarformat.CodeField, name string) {
	g := s.opts.Geometry
	img, err := renderCode(f, int(g.Px(float64(f.Size))))
	if err != nil {
		s.warn(ctx, "code", "code field could not be encoded, skipping",
			zap.String("field", name), zap.Error(err))
		return
	}

	at := image.Pt(int(g.Px(float64(f.OffsetX))), int(g.Px(float64(f.OffsetY))))
	draw.Draw(buf, image.Rectangle{Min: at, Max: at.Add(img.Bounds().Size())}, img, img.Bounds().Min, draw.Over)
}
