package renderer

import (
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	// LineSpacing multiplies the reference line height
	LineSpacing = 1.15
	// DefaultBoldDivisor gives a 15px stroke at size 600
	DefaultBoldDivisor = 40.0

	referenceText = "Ay"
)

// BoldPresets are the named stroke ratios accepted in configuration
var BoldPresets = map[string]float64{
	"heavy":   33, // roughly size * 0.03
	"regular": DefaultBoldDivisor,
	"light":   60,
}

// BoldStroke is the pseudo-bold stroke width for a font size:
// floor(size / divisor), at least 1
func BoldStroke(size, divisor float64) float64 {
	if divisor <= 0 {
		divisor = DefaultBoldDivisor
	}
	s := math.Floor(size / divisor)
	if s < 1 {
		s = 1
	}
	return s
}

// Line is one laid-out line with its measured width (stroke included)
type Line struct {
	Text  string
	Width float64
}

// TextBlock is wrapped text ready to be drawn
type TextBlock struct {
	Lines      []Line
	LineHeight float64
	Spacing    float64
	Ascent     float64 // line top to baseline
	Stroke     float64
}

// Height of the block: n * spacing minus the trailing gap
func (b TextBlock) Height() float64 {
	if len(b.Lines) == 0 {
		return 0
	}
	return float64(len(b.Lines))*b.Spacing - (b.Spacing - b.LineHeight)
}

// Width of the widest line
func (b TextBlock) Width() float64 {
	w := 0.0
	for _, l := range b.Lines {
		w = math.Max(w, l.Width)
	}
	return w
}

// Layout wraps text into lines no wider than maxWidth using face metrics.
// stroke is the pseudo-bold width, zero for regular text.
func Layout(text string, maxWidth float64, face font.Face, stroke float64) TextBlock {
	measure := func(s string) float64 {
		return fixedToFloat(font.MeasureString(face, s)) + 2*stroke
	}

	bounds, _ := font.BoundString(face, referenceText)
	lineHeight := fixedToFloat(bounds.Max.Y-bounds.Min.Y) + 2*stroke

	return TextBlock{
		Lines:      Wrap(text, maxWidth, measure),
		LineHeight: lineHeight,
		Spacing:    lineHeight * LineSpacing,
		Ascent:     -fixedToFloat(bounds.Min.Y) + stroke,
		Stroke:     stroke,
	}
}

// Wrap breaks text greedily on whitespace. A word that cannot fit on a line
// of its own is broken between characters.
func Wrap(text string, maxWidth float64, measure func(string) float64) []Line {
	var lines []Line
	cur := ""
	flush := func() {
		if cur != "" {
			lines = append(lines, Line{Text: cur, Width: measure(cur)})
			cur = ""
		}
	}

	for _, word := range strings.Fields(text) {
		if cur != "" {
			candidate := cur + " " + word
			if measure(candidate) <= maxWidth {
				cur = candidate
				continue
			}
			flush()
		}

		if measure(word) <= maxWidth {
			cur = word
			continue
		}

		chunks := breakWord(word, maxWidth, measure)
		for _, c := range chunks[:len(chunks)-1] {
			lines = append(lines, Line{Text: c, Width: measure(c)})
		}
		cur = chunks[len(chunks)-1]
	}
	flush()

	return lines
}

// breakWord splits word into the longest runs of characters that fit.
// A single character wider than maxWidth still gets its own chunk.
func breakWord(word string, maxWidth float64, measure func(string) float64) []string {
	var chunks []string
	cur := ""
	for _, r := range word {
		candidate := cur + string(r)
		if cur != "" && measure(candidate) > maxWidth {
			chunks = append(chunks, cur)
			candidate = string(r)
		}
		cur = candidate
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// DrawBlock draws b centered horizontally and vertically in region
func DrawBlock(dc *gg.Context, b TextBlock, f *truetype.Font, face font.Face, size float64, region image.Rectangle, c color.Color) {
	top := float64(region.Min.Y) + (float64(region.Dy())-b.Height())/2
	for i, line := range b.Lines {
		x := float64(region.Min.X) + (float64(region.Dx())-line.Width)/2 + b.Stroke
		baseline := top + float64(i)*b.Spacing + b.Ascent
		drawLine(dc, f, face, size, line.Text, x, baseline, b.Stroke, c)
	}
}

// drawLine draws text with its origin at (x, baseline). A positive stroke
// fills and strokes the glyph outlines for a pseudo-bold look.
func drawLine(dc *gg.Context, f *truetype.Font, face font.Face, size float64, text string, x, baseline, stroke float64, c color.Color) {
	dc.SetColor(c)
	if stroke <= 0 {
		dc.SetFontFace(face)
		dc.DrawString(text, x, baseline)
		return
	}

	scale := fixed.Int26_6(size * 64)
	var (
		gb      truetype.GlyphBuf
		prev    truetype.Index
		hasPrev bool
	)
	pen := x
	for _, r := range text {
		idx := f.Index(r)
		if hasPrev {
			pen += fixedToFloat(f.Kern(scale, prev, idx))
		}
		if err := gb.Load(f, scale, idx, font.HintingNone); err == nil {
			start := 0
			for _, end := range gb.Ends {
				glyphContour(dc, gb.Points[start:end], pen, baseline)
				start = end
			}
		}
		pen += fixedToFloat(f.HMetric(scale, idx).AdvanceWidth)
		prev, hasPrev = idx, true
	}

	dc.SetLineWidth(2 * stroke)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetLineCap(gg.LineCapRound)
	dc.FillPreserve()
	dc.Stroke()
}

// glyphContour appends one quadratic TrueType contour to the path. Font
// units point up, so y is flipped around the baseline.
func glyphContour(dc *gg.Context, ps []truetype.Point, ox, oy float64) {
	if len(ps) == 0 {
		return
	}
	pt := func(p truetype.Point) (float64, float64) {
		return ox + fixedToFloat(p.X), oy - fixedToFloat(p.Y)
	}
	onCurve := func(p truetype.Point) bool { return p.Flags&0x01 != 0 }
	mid := func(a, b truetype.Point) truetype.Point {
		return truetype.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Flags: 0x01}
	}

	start, rest := ps[0], ps[1:]
	if !onCurve(start) {
		last := ps[len(ps)-1]
		if onCurve(last) {
			start, rest = last, ps[:len(ps)-1]
		} else {
			start, rest = mid(start, last), ps
		}
	}

	dc.MoveTo(pt(start))
	q0, on0 := start, true
	for _, p := range rest {
		on := onCurve(p)
		switch {
		case on && on0:
			dc.LineTo(pt(p))
		case on:
			cx, cy := pt(q0)
			x, y := pt(p)
			dc.QuadraticTo(cx, cy, x, y)
		case !on0:
			m := mid(q0, p)
			cx, cy := pt(q0)
			x, y := pt(m)
			dc.QuadraticTo(cx, cy, x, y)
		}
		q0, on0 = p, on
	}

	if on0 {
		dc.LineTo(pt(start))
	} else {
		cx, cy := pt(q0)
		x, y := pt(start)
		dc.QuadraticTo(cx, cy, x, y)
	}
	dc.ClosePath()
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
