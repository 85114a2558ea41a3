package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"github.com/disintegration/imaging"
)

const (
	// radial fills are computed at most this large and upscaled
	radialWorkSize = 400
	// rotated fills (angled, waves) are computed at most this large
	rotateWorkSize = 1024
	// one waves cycle spans this fraction of the canvas diagonal
	wavesPeriod = 0.4
)

// Fill produces a solid or gradient background of exactly width x height.
// Image backgrounds need an asset and are handled by the Renderer.
func Fill(width, height int, bg calendarformat.Background) (*image.NRGBA, error) {
	switch b := bg.(type) {
	case calendarformat.SolidColor:
		return Solid(width, height, HexToRGB(b.Hex)), nil
	case calendarformat.Gradient:
		return GenerateGradient(width, height, b), nil
	default:
		return nil, fmt.Errorf("background %T cannot be generated", bg)
	}
}

// Solid returns a single-color image
func Solid(width, height int, c color.Color) *image.NRGBA {
	width, height = clampSize(width, height)
	return imaging.New(width, height, c)
}

// GenerateGradient renders a gradient theme or classic variant.
// Unknown themes fall back to the start color, unknown classic variants
// to the diagonal.
func GenerateGradient(width, height int, g calendarformat.Gradient) *image.NRGBA {
	a, b := HexToRGB(g.StartHex), HexToRGB(g.EndHex)

	switch g.Theme {
	case calendarformat.ThemeAurora:
		return Radial(width, height, a, b, 0.3, 0.3)
	case calendarformat.ThemeLiquid:
		return Angled(width, height, a, b, 135)
	case calendarformat.ThemeMesh:
		return Angled(width, height, a, b, 120)
	case calendarformat.ThemeWaves:
		return Waves(width, height, a, b)
	case calendarformat.ThemeClassic, "":
		switch g.Variant {
		case calendarformat.VariantVertical:
			return Vertical(width, height, a, b)
		case calendarformat.VariantHorizontal:
			return Horizontal(width, height, a, b)
		case calendarformat.VariantRadial:
			return Radial(width, height, a, b, 0.5, 0.5)
		default:
			return Diagonal(width, height, a, b)
		}
	default:
		return Solid(width, height, a)
	}
}

// Vertical runs from a on the first row to b on the last row
func Vertical(width, height int, a, b color.NRGBA) *image.NRGBA {
	width, height = clampSize(width, height)
	strip := image.NewNRGBA(image.Rect(0, 0, 1, height))
	for y := 0; y < height; y++ {
		strip.SetNRGBA(0, y, lerp(a, b, ratio(y, height)))
	}
	return imaging.Resize(strip, width, height, imaging.NearestNeighbor)
}

// Horizontal runs from a on the first column to b on the last column
func Horizontal(width, height int, a, b color.NRGBA) *image.NRGBA {
	width, height = clampSize(width, height)
	strip := image.NewNRGBA(image.Rect(0, 0, width, 1))
	for x := 0; x < width; x++ {
		strip.SetNRGBA(x, 0, lerp(a, b, ratio(x, width)))
	}
	return imaging.Resize(strip, width, height, imaging.NearestNeighbor)
}

// Diagonal runs from a in the top-left corner to b in the bottom-right
func Diagonal(width, height int, a, b color.NRGBA) *image.NRGBA {
	width, height = clampSize(width, height)
	ws, hs := workSize(width, height, rotateWorkSize)
	img := image.NewNRGBA(image.Rect(0, 0, ws, hs))
	for y := 0; y < hs; y++ {
		ty := ratio(y, hs)
		for x := 0; x < ws; x++ {
			img.SetNRGBA(x, y, lerp(a, b, (ratio(x, ws)+ty)/2))
		}
	}
	return upscale(img, width, height)
}

// Radial fades from a at (cx, cy), given as fractions of the size, to b at
// the farthest corner
func Radial(width, height int, a, b color.NRGBA, cx, cy float64) *image.NRGBA {
	width, height = clampSize(width, height)
	ws, hs := workSize(width, height, radialWorkSize)
	img := image.NewNRGBA(image.Rect(0, 0, ws, hs))

	px, py := cx*float64(ws), cy*float64(hs)
	maxDist := math.Hypot(math.Max(px, float64(ws)-px), math.Max(py, float64(hs)-py))
	if maxDist == 0 {
		maxDist = 1
	}

	for y := 0; y < hs; y++ {
		dy := float64(y) + 0.5 - py
		for x := 0; x < ws; x++ {
			d := math.Hypot(float64(x)+0.5-px, dy)
			img.SetNRGBA(x, y, lerp(a, b, d/maxDist))
		}
	}
	return upscale(img, width, height)
}

// Angled is a linear gradient along a CSS angle (180 = top to bottom,
// 135 = top-left to bottom-right). A vertical ramp is laid into a square
// the size of the diagonal, rotated and center-cropped.
func Angled(width, height int, a, b color.NRGBA, angle float64) *image.NRGBA {
	width, height = clampSize(width, height)
	ws, hs := workSize(width, height, rotateWorkSize)
	d := diagonal(ws, hs)

	rad := angle * math.Pi / 180
	length := math.Abs(float64(ws)*math.Sin(rad)) + math.Abs(float64(hs)*math.Cos(rad))
	if length < 1 {
		length = 1
	}
	offset := (float64(d) - length) / 2

	strip := image.NewNRGBA(image.Rect(0, 0, 1, d))
	for y := 0; y < d; y++ {
		strip.SetNRGBA(0, y, lerp(a, b, (float64(y)+0.5-offset)/length))
	}

	square := imaging.Resize(strip, d, d, imaging.NearestNeighbor)
	rotated := imaging.Rotate(square, 180-angle, a)
	return upscale(imaging.CropCenter(rotated, ws, hs), width, height)
}

// Waves repeats an a-b-a cycle diagonally across the canvas
func Waves(width, height int, a, b color.NRGBA) *image.NRGBA {
	width, height = clampSize(width, height)
	ws, hs := workSize(width, height, rotateWorkSize)
	d := diagonal(ws, hs)

	period := int(math.Round(wavesPeriod * float64(d)))
	if period < 2 {
		period = 2
	}
	cycle := image.NewNRGBA(image.Rect(0, 0, 1, period))
	for y := 0; y < period; y++ {
		pos := (float64(y) + 0.5) / float64(period)
		cycle.SetNRGBA(0, y, lerp(a, b, 1-math.Abs(2*pos-1)))
	}

	tiled := imaging.New(1, d, a)
	for y := 0; y < d; y += period {
		tiled = imaging.Paste(tiled, cycle, image.Pt(0, y))
	}

	square := imaging.Resize(tiled, d, d, imaging.NearestNeighbor)
	rotated := imaging.Rotate(square, 45, a)
	return upscale(imaging.CropCenter(rotated, ws, hs), width, height)
}

func ratio(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}

func clampSize(width, height int) (int, int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// workSize shrinks width x height so the longer side is at most limit
func workSize(width, height, limit int) (int, int) {
	long := width
	if height > long {
		long = height
	}
	if long <= limit {
		return width, height
	}
	f := float64(limit) / float64(long)
	return clampSize(int(math.Round(float64(width)*f)), int(math.Round(float64(height)*f)))
}

func diagonal(width, height int) int {
	return int(math.Ceil(math.Hypot(float64(width), float64(height))))
}

func upscale(img *image.NRGBA, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, imaging.Linear)
}
