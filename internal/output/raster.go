package output

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
)

// jpegEncoder writes baseline RGB JPEG with a JFIF density header
type jpegEncoder struct{}

func (jpegEncoder) Name() string { return "native-jpeg" }

func (jpegEncoder) Supports(cs ColorSpace) bool { return cs == ColorRGB }

func (jpegEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return err
	}
	data, err := setJFIFDensity(buf.Bytes(), opts.DPI)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// pngEncoder writes RGB PNG with a pHYs chunk
type pngEncoder struct{}

func (pngEncoder) Name() string { return "native-png" }

func (pngEncoder) Supports(cs ColorSpace) bool { return cs == ColorRGB }

func (pngEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return err
	}
	data, err := setPNGDensity(buf.Bytes(), opts.DPI)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

var errMalformed = errors.New("malformed encoder output")

// setJFIFDensity replaces the JFIF APP0 segment after SOI, or inserts one,
// so the file carries dpi as its pixel density
func setJFIFDensity(data []byte, dpi float64) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errMalformed
	}

	d := uint16(math.Round(dpi))
	app0 := []byte{
		0xFF, 0xE0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version 1.01
		0x01, // dots per inch
		byte(d >> 8), byte(d), byte(d >> 8), byte(d),
		0x00, 0x00, // no thumbnail
	}

	rest := data[2:]
	if len(rest) >= 9 && rest[0] == 0xFF && rest[1] == 0xE0 && bytes.Equal(rest[4:9], []byte("JFIF\x00")) {
		n := int(binary.BigEndian.Uint16(rest[2:4]))
		if 2+n > len(rest) {
			return nil, errMalformed
		}
		rest = rest[2+n:]
	}

	out := make([]byte, 0, len(data)+len(app0))
	out = append(out, 0xFF, 0xD8)
	out = append(out, app0...)
	return append(out, rest...), nil
}

// setPNGDensity inserts a pHYs chunk after IHDR
func setPNGDensity(data []byte, dpi float64) ([]byte, error) {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(data) < ihdrEnd || string(data[12:16]) != "IHDR" {
		return nil, errMalformed
	}

	ppm := uint32(math.Round(dpi / 0.0254))
	chunk := make([]byte, 4+4+9+4)
	binary.BigEndian.PutUint32(chunk[0:], 9)
	copy(chunk[4:], "pHYs")
	binary.BigEndian.PutUint32(chunk[8:], ppm)
	binary.BigEndian.PutUint32(chunk[12:], ppm)
	chunk[16] = 1 // metre
	binary.BigEndian.PutUint32(chunk[17:], crc32.ChecksumIEEE(chunk[4:17]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, data[ihdrEnd:]...), nil
}
