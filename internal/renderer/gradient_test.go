package renderer

import (
	"bytes"
	"image/color"
	"math"
	"testing"

	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
)

func TestHexToRGB(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#336699", color.NRGBA{R: 0x33, G: 0x66, B: 0x99, A: 255}},
		{"d40808", color.NRGBA{R: 0xd4, G: 0x08, B: 0x08, A: 255}},
		{"#fff", white},
		{"#abc", color.NRGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 255}},
		{"#12345", white},
		{"#zzzzzz", white},
		{"", white},
	}

	for _, tt := range tests {
		if got := HexToRGB(tt.in); got != tt.want {
			t.Errorf("HexToRGB(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	for _, hex := range []string{"#000000", "#ffffff", "#1d4ed8", "#e5e7eb", "#9ca3af"} {
		if got := RGBToHex(HexToRGB(hex)); got != hex {
			t.Errorf("round trip of %s gave %s", hex, got)
		}
	}
}

func TestVerticalGradientEdges(t *testing.T) {
	a := HexToRGB("#ff0000")
	b := HexToRGB("#0000ff")
	img := Vertical(37, 120, a, b)

	if img.Bounds().Dx() != 37 || img.Bounds().Dy() != 120 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	for x := 0; x < 37; x++ {
		if got := img.NRGBAAt(x, 0); got != a {
			t.Fatalf("first row pixel %d = %v, want %v", x, got, a)
		}
		if got := img.NRGBAAt(x, 119); got != b {
			t.Fatalf("last row pixel %d = %v, want %v", x, got, b)
		}
	}
}

func TestHorizontalGradientEdges(t *testing.T) {
	a := HexToRGB("#000000")
	b := HexToRGB("#ffffff")
	img := Horizontal(64, 9, a, b)

	for y := 0; y < 9; y++ {
		if img.NRGBAAt(0, y) != a || img.NRGBAAt(63, y) != b {
			t.Fatalf("row %d edges = %v / %v", y, img.NRGBAAt(0, y), img.NRGBAAt(63, y))
		}
	}
}

func TestGenerateGradientDeterministic(t *testing.T) {
	themes := []calendarformat.Gradient{
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "classic", Variant: "vertical"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "classic", Variant: "horizontal"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "classic", Variant: "radial"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "classic", Variant: "diagonal"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "aurora"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "liquid"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "mesh"},
		{StartHex: "#ff0000", EndHex: "#00ff00", Theme: "waves"},
	}

	for _, g := range themes {
		first := GenerateGradient(150, 400, g)
		second := GenerateGradient(150, 400, g)

		if first.Bounds().Dx() != 150 || first.Bounds().Dy() != 400 {
			t.Errorf("%s/%s: size %v", g.Theme, g.Variant, first.Bounds())
		}
		if !bytes.Equal(first.Pix, second.Pix) {
			t.Errorf("%s/%s: output differs between runs", g.Theme, g.Variant)
		}
	}
}

func TestGenerateGradientLargeCanvas(t *testing.T) {
	g := calendarformat.Gradient{StartHex: "#000000", EndHex: "#ffffff", Theme: "waves"}
	img := GenerateGradient(1200, 3000, g)
	if img.Bounds().Dx() != 1200 || img.Bounds().Dy() != 3000 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
}

func TestUnknownThemeIsSolidStart(t *testing.T) {
	img := GenerateGradient(10, 10, calendarformat.Gradient{StartHex: "#123456", EndHex: "#ffffff", Theme: "plasma"})
	want := HexToRGB("#123456")
	if img.NRGBAAt(0, 0) != want || img.NRGBAAt(9, 9) != want {
		t.Errorf("expected solid %v", want)
	}
}

func TestAngledGradientDirection(t *testing.T) {
	a := HexToRGB("#000000")
	b := HexToRGB("#ffffff")
	img := Angled(300, 600, a, b, 135)

	tl := img.NRGBAAt(2, 2).R
	br := img.NRGBAAt(297, 597).R
	if tl > 60 || br < 195 {
		t.Errorf("135deg gradient should run dark to light: top-left %d bottom-right %d", tl, br)
	}
}

func TestWavesPeriod(t *testing.T) {
	const w, h = 600, 100
	img := Waves(w, h, HexToRGB("#000000"), HexToRGB("#ffffff"))

	row := make([]float64, w)
	for x := range row {
		row[x] = float64(img.NRGBAAt(x, h/2).R)
	}

	// bands run at 45 degrees, so along a row one cycle is period*sqrt(2)
	period := wavesPeriod * math.Ceil(math.Hypot(w, h))
	want := period * math.Sqrt2

	best, bestDiff := 0, math.MaxFloat64
	for shift := 100; shift <= 500; shift++ {
		var diff float64
		for x := 0; x+shift < w; x++ {
			diff += math.Abs(row[x] - row[x+shift])
		}
		diff /= float64(w - shift)
		if diff < bestDiff {
			best, bestDiff = shift, diff
		}
	}
	if math.Abs(float64(best)-want) > want*0.05 {
		t.Errorf("waves repeat every %d px along a row, want about %.0f", best, want)
	}
	if bestDiff > 10 {
		t.Errorf("waves are not periodic: mean difference %.1f at shift %d", bestDiff, best)
	}
}

func TestRadialCenter(t *testing.T) {
	a := HexToRGB("#000000")
	b := HexToRGB("#ffffff")
	img := Radial(200, 200, a, b, 0.3, 0.3)

	center := img.NRGBAAt(60, 60).R
	far := img.NRGBAAt(199, 199).R
	if center > 20 || far < 200 {
		t.Errorf("radial: center %d far corner %d", center, far)
	}
}

func TestFillRejectsImageBackground(t *testing.T) {
	if _, err := Fill(10, 10, calendarformat.ImageBackground{Source: "x.png"}); err == nil {
		t.Error("Expected error for image background")
	}

	img, err := Fill(0, -5, calendarformat.SolidColor{Hex: "#336699"})
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if img.Bounds().Dx() != 1 || img.Bounds().Dy() != 1 {
		t.Errorf("non-positive sizes should clamp to 1, got %v", img.Bounds())
	}
}
