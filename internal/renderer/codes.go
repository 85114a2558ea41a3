package renderer

import (
	"fmt"
	"image"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/ean"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"github.com/skip2/go-qrcode"
)

// barcode modules are at least this many pixels wide
const minModuleWidth = 2

// renderCode draws a QR code or barcode at size (scaled to the canvas)
func renderCode(f calendarformat.CodeField, size int) (image.Image, error) {
	if size < 1 {
		size = 1
	}

	switch f.Kind {
	case calendarformat.CodeQR:
		qr, err := qrcode.New(f.Value, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("failed to encode qr code: %w", err)
		}
		qr.ForegroundColor = HexToRGB(f.Color)
		return qr.Image(size), nil
	case calendarformat.CodeCode128, calendarformat.CodeEAN13:
		var (
			bc  barcode.Barcode
			err error
		)
		if f.Kind == calendarformat.CodeEAN13 {
			bc, err = ean.Encode(f.Value)
		} else {
			bc, err = code128.Encode(f.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.Kind, err)
		}

		module := size / 40
		if module < minModuleWidth {
			module = minModuleWidth
		}
		scaled, err := barcode.Scale(bc, bc.Bounds().Dx()*module, size)
		if err != nil {
			return nil, fmt.Errorf("failed to scale %s: %w", f.Kind, err)
		}
		return scaled, nil
	default:
		return nil, fmt.Errorf("unsupported code kind: %s", f.Kind)
	}
}
