//go:build imagick

package output

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"

	"gopkg.in/gographics/imagick.v3/imagick"
)

var magickInit sync.Once

// magickEncoder hands the raster to ImageMagick, which writes real CMYK
// JPEG and PSD with resolution metadata
type magickEncoder struct {
	format Format
}

func newMagickEncoder(f Format) (Encoder, bool) {
	magickInit.Do(imagick.Initialize)
	return &magickEncoder{format: f}, true
}

func (e *magickEncoder) Name() string { return "imagemagick-" + string(e.format) }

func (e *magickEncoder) Supports(ColorSpace) bool { return true }

func (e *magickEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(buf.Bytes()); err != nil {
		return fmt.Errorf("imagemagick read: %w", err)
	}
	if opts.ColorSpace == ColorCMYK {
		if err := mw.TransformImageColorspace(imagick.COLORSPACE_CMYK); err != nil {
			return fmt.Errorf("imagemagick cmyk: %w", err)
		}
	}
	if err := mw.SetImageUnits(imagick.RESOLUTION_PIXELS_PER_INCH); err != nil {
		return err
	}
	if err := mw.SetImageResolution(opts.DPI, opts.DPI); err != nil {
		return err
	}
	if err := mw.SetImageFormat(strings.ToUpper(string(e.format))); err != nil {
		return err
	}
	if e.format == FormatJPEG {
		if err := mw.SetImageCompressionQuality(uint(opts.Quality)); err != nil {
			return err
		}
	}

	_, err := w.Write(mw.GetImageBlob())
	return err
}
