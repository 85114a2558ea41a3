package output

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/calendarpress/calendar-engine/internal/geometry"
	"github.com/jung-kurt/gofpdf"
)

// pdfEncoder writes a single-page proof whose page is the physical size of
// the canvas at the requested DPI
type pdfEncoder struct{}

func (pdfEncoder) Name() string { return "gofpdf" }

func (pdfEncoder) Supports(cs ColorSpace) bool { return cs == ColorRGB }

func (pdfEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	b := img.Bounds()
	wmm := geometry.PxToMM(b.Dx(), opts.DPI)
	hmm := geometry.PxToMM(b.Dy(), opts.DPI)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return err
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: wmm, Ht: hmm},
	})
	pdf.SetCreator("calendar-engine", false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: wmm, Ht: hmm})

	imgOpts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader("canvas", imgOpts, &buf)
	pdf.ImageOptions("canvas", 0, 0, wmm, hmm, false, imgOpts, 0, "")

	return pdf.Output(w)
}
