package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"jpg", FormatJPEG},
		{".JPEG", FormatJPEG},
		{"png", FormatPNG},
		{"psd", FormatPSD},
		{".pdf", FormatPDF},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
	if _, err := ParseFormat("tiff"); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if FormatJPEG.Ext() != ".jpg" || FormatPSD.Ext() != ".psd" {
		t.Error("unexpected extensions")
	}
}

func TestWriteJPEGDensity(t *testing.T) {
	w := NewWriter(WriterOptions{}, nil, nil)
	path := filepath.Join(t.TempDir(), "out", "header.jpg")

	res, err := w.Write(context.Background(), solid(40, 20, color.RGBA{R: 200, A: 255}), path, Options{
		Format:     FormatJPEG,
		ColorSpace: ColorRGB,
		DPI:        300,
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.Fallback || res.ColorSpace != ColorRGB || res.Path != path {
		t.Errorf("unexpected result %+v", res)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[2] != 0xFF || data[3] != 0xE0 || string(data[6:11]) != "JFIF\x00" {
		t.Fatalf("missing JFIF header: % x", data[:16])
	}
	if data[13] != 1 {
		t.Errorf("density unit = %d, want dots per inch", data[13])
	}
	if x, y := binary.BigEndian.Uint16(data[14:16]), binary.BigEndian.Uint16(data[16:18]); x != 300 || y != 300 {
		t.Errorf("density = %dx%d, want 300x300", x, y)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("written file does not decode: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Errorf("decoded size %v", img.Bounds())
	}
}

func TestSetJFIFDensityReplacesExisting(t *testing.T) {
	first, err := setJFIFDensity([]byte{0xFF, 0xD8, 0xFF, 0xD9}, 72)
	if err != nil {
		t.Fatal(err)
	}
	second, err := setJFIFDensity(first, 300)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("APP0 was duplicated: %d vs %d bytes", len(second), len(first))
	}
	if binary.BigEndian.Uint16(second[14:16]) != 300 {
		t.Errorf("density not replaced")
	}
	if _, err := setJFIFDensity([]byte("nope"), 300); err == nil {
		t.Error("Expected error for non-JPEG data")
	}
}

func TestWritePNGDensity(t *testing.T) {
	w := NewWriter(WriterOptions{}, nil, nil)
	path := filepath.Join(t.TempDir(), "proof.png")

	if _, err := w.Write(context.Background(), solid(5, 5, color.White), path, Options{Format: FormatPNG, ColorSpace: ColorRGB, DPI: 300}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	i := bytes.Index(data, []byte("pHYs"))
	if i < 0 {
		t.Fatal("pHYs chunk missing")
	}
	if ppm := binary.BigEndian.Uint32(data[i+4:]); ppm != 11811 {
		t.Errorf("pixels per metre = %d, want 11811", ppm)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("written png does not decode: %v", err)
	}
}

func TestWriteFlattensOnWhite(t *testing.T) {
	w := NewWriter(WriterOptions{}, nil, nil)
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 128})

	res, err := w.Write(context.Background(), img, filepath.Join(t.TempDir(), "a.png"), Options{Format: FormatPNG, ColorSpace: ColorRGB})
	if err != nil {
		t.Fatal(err)
	}

	flat := res.Image.(*image.RGBA)
	if got := flat.RGBAAt(0, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("transparent pixel = %v, want white", got)
	}
	if got := flat.RGBAAt(1, 0); got.A != 255 || got.R < 120 || got.R > 135 {
		t.Errorf("half transparent black = %v, want opaque mid grey", got)
	}
}

func TestWriteCMYKJPEGFallsBackToRGB(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	w := NewWriter(WriterOptions{}, zap.New(core), nil)

	res, err := w.Write(context.Background(), solid(8, 8, color.Black), filepath.Join(t.TempDir(), "x.jpg"), Options{
		Format:     FormatJPEG,
		ColorSpace: ColorCMYK,
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.ColorSpace != ColorRGB {
		t.Errorf("native jpeg should report rgb, got %s", res.ColorSpace)
	}
	if logs.FilterMessage("encoder cannot write cmyk, writing rgb").Len() != 1 {
		t.Error("color space downgrade was not logged")
	}
}

func TestWritePSDFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	w := NewWriter(WriterOptions{PSDEncoder: PSDNone}, zap.New(core), nil)

	dir := t.TempDir()
	requested := filepath.Join(dir, "backing.psd")

	res, err := w.Write(context.Background(), solid(16, 9, color.White), requested, Options{Format: FormatPSD, ColorSpace: ColorCMYK})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// the native jpeg encoder writes rgb, so the file must not claim cmyk
	want := filepath.Join(dir, "backing_rgb.jpg")
	if !res.Fallback || res.Path != want || res.Format != FormatJPEG || res.ColorSpace != ColorRGB {
		t.Errorf("unexpected fallback result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "backing_cmyk.jpg")); !os.IsNotExist(err) {
		t.Error("rgb data written under a cmyk name")
	}
	if _, err := os.Stat(requested); !os.IsNotExist(err) {
		t.Error("psd file should not exist")
	}

	f, err := os.Open(want)
	if err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := img.(*image.CMYK); ok {
		t.Errorf("decoded %T, want an rgb jpeg", img)
	}

	entries := logs.FilterMessage("psd encoder unavailable, writing rgb jpeg").All()
	if len(entries) != 1 {
		t.Fatalf("fallback was not logged: %v", logs.All())
	}
	if entries[0].ContextMap()["path"] != want {
		t.Errorf("log should name the fallback path: %v", entries[0].ContextMap())
	}
}

type cmykJPEGEncoder struct {
	got image.Image
}

func (e *cmykJPEGEncoder) Name() string { return "test-cmyk-jpeg" }
func (e *cmykJPEGEncoder) Supports(ColorSpace) bool { return true }
func (e *cmykJPEGEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	e.got = img
	_, err := w.Write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	return err
}

func TestWritePSDFallbackWithCMYKEncoder(t *testing.T) {
	w := NewWriter(WriterOptions{PSDEncoder: PSDNone}, nil, nil)
	enc := &cmykJPEGEncoder{}
	w.Register(FormatJPEG, enc)

	dir := t.TempDir()
	res, err := w.Write(context.Background(), solid(4, 4, color.White), filepath.Join(dir, "header.psd"), Options{Format: FormatPSD})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.Path != filepath.Join(dir, "header_cmyk.jpg") || res.ColorSpace != ColorCMYK || !res.Fallback {
		t.Errorf("unexpected fallback result %+v", res)
	}
	if _, ok := enc.got.(*image.CMYK); !ok {
		t.Errorf("encoder received %T, want *image.CMYK", enc.got)
	}
}

func TestWriteMagickBackend(t *testing.T) {
	w := NewWriter(WriterOptions{PSDEncoder: PSDMagick}, nil, nil)
	if e, ok := w.Encoder(FormatPSD); ok && !strings.HasPrefix(e.Name(), "imagemagick") {
		t.Errorf("magick backend registered %s for psd", e.Name())
	}
	if _, ok := w.Encoder(FormatJPEG); !ok {
		t.Error("jpeg encoder missing")
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	w := NewWriter(WriterOptions{}, nil, nil)
	_, err := w.Write(context.Background(), solid(1, 1, color.White), filepath.Join(t.TempDir(), "a.tif"), Options{Format: "tiff"})
	if !errors.Is(err, ErrNoEncoder) {
		t.Errorf("expected ErrNoEncoder, got %v", err)
	}
}

func TestWritePDFProof(t *testing.T) {
	w := NewWriter(WriterOptions{}, nil, nil)
	path := filepath.Join(t.TempDir(), "proof.pdf")

	res, err := w.Write(context.Background(), solid(300, 600, color.RGBA{B: 255, A: 255}), path, Options{Format: FormatPDF, ColorSpace: ColorRGB, DPI: 300})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.WidthMM < 25.3 || res.WidthMM > 25.5 || res.HeightMM < 50.7 || res.HeightMM > 50.9 {
		t.Errorf("physical size %.2fx%.2f mm", res.WidthMM, res.HeightMM)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("not a pdf: %q", data[:8])
	}
}

func TestFallbackPath(t *testing.T) {
	tests := map[string]string{
		"out/header.psd": "out/header_cmyk.jpg",
		"backing":        "backing_cmyk.jpg",
		"a.b/c.psd":      "a.b/c_cmyk.jpg",
	}
	for in, want := range tests {
		if got := FallbackPath(in, ColorCMYK); got != want {
			t.Errorf("FallbackPath(%q) = %q, want %q", in, got, want)
		}
	}
	if got := FallbackPath("out/header.psd", ColorRGB); got != "out/header_rgb.jpg" {
		t.Errorf("rgb fallback path = %q", got)
	}
}
