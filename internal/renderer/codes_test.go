package renderer

import (
	"image/color"
	"testing"

	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
)

func TestRenderQRCodeColored(t *testing.T) {
	img, err := renderCode(calendarformat.CodeField{Kind: calendarformat.CodeQR, Value: "https://example.com/oferta", Color: "#ff0000"}, 200)
	if err != nil {
		t.Fatalf("renderCode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("qr size = %v, want 200x200", b.Size())
	}

	red, white := false, false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			switch {
			case c.R == 255 && c.G == 0 && c.B == 0:
				red = true
			case c.R == 255 && c.G == 255 && c.B == 255:
				white = true
			}
		}
	}
	if !red || !white {
		t.Errorf("expected red modules on white, red=%v white=%v", red, white)
	}
}

func TestRenderBarcodes(t *testing.T) {
	tests := []struct {
		kind  calendarformat.CodeKind
		value string
		size  int
		width int
	}{
		{calendarformat.CodeEAN13, "5901234123457", 80, 95 * 2},
		{calendarformat.CodeEAN13, "5901234123457", 400, 95 * 10},
	}
	for _, tt := range tests {
		img, err := renderCode(calendarformat.CodeField{Kind: tt.kind, Value: tt.value}, tt.size)
		if err != nil {
			t.Fatalf("%s: %v", tt.kind, err)
		}
		if b := img.Bounds(); b.Dx() != tt.width || b.Dy() != tt.size {
			t.Errorf("%s at %d: size %v, want %dx%d", tt.kind, tt.size, b.Size(), tt.width, tt.size)
		}
	}

	img, err := renderCode(calendarformat.CodeField{Kind: calendarformat.CodeCode128, Value: "CAL-2026"}, 100)
	if err != nil {
		t.Fatalf("code128: %v", err)
	}
	if img.Bounds().Dy() != 100 || img.Bounds().Dx()%minModuleWidth != 0 {
		t.Errorf("code128 size %v", img.Bounds().Size())
	}
}

func TestRenderCodeErrors(t *testing.T) {
	bad := []calendarformat.CodeField{
		{Kind: calendarformat.CodeEAN13, Value: "123"},
		{Kind: "pdf417", Value: "x"},
	}
	for _, f := range bad {
		if _, err := renderCode(f, 100); err == nil {
			t.Errorf("%s %q: expected error", f.Kind, f.Value)
		}
	}
}
