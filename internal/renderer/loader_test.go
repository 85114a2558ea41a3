package renderer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoaderRemote(t *testing.T) {
	data := encodePNG(t, 8, 4, color.NRGBA{R: 200, A: 128})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Write(data)
		case "/broken.png":
			w.Write([]byte("definitely not an image"))
		case "/error.png":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	l := NewLoader(time.Second, zap.New(core))
	ctx := context.Background()

	img := l.Load(ctx, srv.URL+"/ok.png")
	if img == nil {
		t.Fatal("expected image")
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
	if a := img.NRGBAAt(0, 0).A; a != 128 {
		t.Errorf("alpha not preserved: %d", a)
	}

	for _, path := range []string{"/missing.png", "/broken.png", "/error.png"} {
		if img := l.Load(ctx, srv.URL+path); img != nil {
			t.Errorf("%s: expected nil image", path)
		}
	}
	if logs.Len() != 3 {
		t.Errorf("expected 3 warnings, got %d", logs.Len())
	}

	if _, err := l.Fetch(ctx, srv.URL+"/missing.png"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestLoaderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	l := NewLoader(50*time.Millisecond, nil)
	start := time.Now()
	if img := l.Load(context.Background(), srv.URL+"/slow.png"); img != nil {
		t.Error("expected nil image on timeout")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestLoaderLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logo.png")
	if err := os.WriteFile(path, encodePNG(t, 3, 3, color.White), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(0, nil)
	ctx := context.Background()

	if img := l.Load(ctx, path); img == nil {
		t.Error("expected local image")
	}
	if img := l.Load(ctx, "file://"+filepath.ToSlash(path)); img == nil {
		t.Error("expected file:// image")
	}
	if img := l.Load(ctx, filepath.Join(dir, "nope.png")); img != nil {
		t.Error("expected nil for missing file")
	}
	if img := l.Load(ctx, ""); img != nil {
		t.Error("expected nil for empty reference")
	}
}

func TestLoaderMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "logo.png")
	if err := os.WriteFile(present, encodePNG(t, 2, 2, color.White), 0644); err != nil {
		t.Fatal(err)
	}
	gone := filepath.Join(dir, "gone.png")

	core, logs := observer.New(zapcore.WarnLevel)
	l := NewLoader(0, zap.New(core))

	missing := l.Missing(context.Background(), []string{present, gone, ""})
	if len(missing) != 2 || missing[0] != gone || missing[1] != "" {
		t.Errorf("Missing = %q", missing)
	}
	if n := logs.FilterMessage("image unavailable").Len(); n != 2 {
		t.Errorf("expected a warning per missing image, got %d", n)
	}
}
