package output

import (
	"bufio"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math"
)

const (
	psdModeRGB  = 3
	psdModeCMYK = 4

	psdResolutionInfo = 0x03ED
	psdRLE            = 1
	psdLayerName      = "Calendar"
)

// psdEncoder writes an 8-bit RGB or CMYK Photoshop document holding the
// canvas as one raster layer plus the merged image
type psdEncoder struct{}

func (psdEncoder) Name() string { return "native-psd" }

func (psdEncoder) Supports(ColorSpace) bool { return true }

func (psdEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	planes, mode := psdPlanes(img)
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	// every channel is PackBits compressed once and written twice:
	// as layer data and as the merged image
	packed := make([][][]byte, len(planes))
	for c, plane := range planes {
		packed[c] = make([][]byte, height)
		for y := 0; y < height; y++ {
			packed[c][y] = packBits(nil, plane[y*width:(y+1)*width])
		}
	}

	bw := bufio.NewWriter(w)
	pw := &psdWriter{w: bw}

	// file header
	pw.bytes([]byte("8BPS"))
	pw.u16(1)
	pw.bytes(make([]byte, 6))
	pw.u16(uint16(len(planes)))
	pw.u32(uint32(height))
	pw.u32(uint32(width))
	pw.u16(8)
	pw.u16(mode)

	// color mode data
	pw.u32(0)

	// image resources: resolution info only
	res := uint32(math.Round(opts.DPI)) << 16
	pw.u32(4 + 2 + 2 + 4 + 16)
	pw.bytes([]byte("8BIM"))
	pw.u16(psdResolutionInfo)
	pw.u16(0) // empty pascal name, padded
	pw.u32(16)
	pw.u32(res)
	pw.u16(1) // pixels per inch
	pw.u16(1) // width unit inches
	pw.u32(res)
	pw.u16(1)
	pw.u16(1)

	// layer and mask information
	channelLen := make([]uint32, len(planes))
	for c := range packed {
		channelLen[c] = 2 + uint32(2*height)
		for _, row := range packed[c] {
			channelLen[c] += uint32(len(row))
		}
	}
	name := pascal4(psdLayerName)
	extra := uint32(4 + 4 + len(name))
	record := uint32(16+2+6*len(planes)+4+4+4) + 4 + extra
	info := 2 + record
	for _, n := range channelLen {
		info += n
	}
	if info%2 != 0 {
		info++
	}

	pw.u32(4 + info + 4)
	pw.u32(info)
	pw.u16(1) // layer count
	pw.u32(0)
	pw.u32(0)
	pw.u32(uint32(height))
	pw.u32(uint32(width))
	pw.u16(uint16(len(planes)))
	for c := range planes {
		pw.u16(uint16(c))
		pw.u32(channelLen[c])
	}
	pw.bytes([]byte("8BIMnorm"))
	pw.bytes([]byte{255, 0, 0, 0}) // opacity, clipping, flags, filler
	pw.u32(extra)
	pw.u32(0) // layer mask
	pw.u32(0) // blending ranges
	pw.bytes(name)
	for c := range packed {
		pw.u16(psdRLE)
		pw.rows(packed[c:c+1], height)
	}
	if (2+record+sum(channelLen))%2 != 0 {
		pw.bytes([]byte{0})
	}
	pw.u32(0) // global layer mask

	// merged image data
	pw.u16(psdRLE)
	pw.rows(packed, height)

	if pw.err != nil {
		return pw.err
	}
	return bw.Flush()
}

// psdPlanes splits img into one byte plane per channel. CMYK planes are
// stored inverted, 0 meaning full ink.
func psdPlanes(img image.Image) ([][]byte, uint16) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()

	if cm, ok := img.(*image.CMYK); ok {
		planes := [][]byte{make([]byte, n), make([]byte, n), make([]byte, n), make([]byte, n)}
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				p := cm.PixOffset(x, y)
				for c := 0; c < 4; c++ {
					planes[c][i] = 255 - cm.Pix[p+c]
				}
				i++
			}
		}
		return planes, psdModeCMYK
	}

	planes := [][]byte{make([]byte, n), make([]byte, n), make([]byte, n)}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			planes[0][i], planes[1][i], planes[2][i] = c.R, c.G, c.B
			i++
		}
	}
	return planes, psdModeRGB
}

// packBits appends the PackBits encoding of src to dst
func packBits(dst, src []byte) []byte {
	for i := 0; i < len(src); {
		j := i + 1
		for j < len(src) && j-i < 128 && src[j] == src[i] {
			j++
		}
		if j-i >= 3 {
			dst = append(dst, byte(int8(1-(j-i))), src[i])
			i = j
			continue
		}

		start := i
		for i < len(src) && i-start < 128 {
			if i+2 < len(src) && src[i] == src[i+1] && src[i] == src[i+2] {
				break
			}
			i++
		}
		dst = append(dst, byte(i-start-1))
		dst = append(dst, src[start:i]...)
	}
	return dst
}

// pascal4 is a pascal string padded to a multiple of 4 bytes
func pascal4(s string) []byte {
	out := append([]byte{byte(len(s))}, s...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func sum(v []uint32) uint32 {
	var s uint32
	for _, n := range v {
		s += n
	}
	return s
}

// psdWriter keeps the first write error
type psdWriter struct {
	w   io.Writer
	err error
	buf [4]byte
}

func (p *psdWriter) bytes(b []byte) {
	if p.err == nil {
		_, p.err = p.w.Write(b)
	}
}

func (p *psdWriter) u16(v uint16) {
	binary.BigEndian.PutUint16(p.buf[:2], v)
	p.bytes(p.buf[:2])
}

func (p *psdWriter) u32(v uint32) {
	binary.BigEndian.PutUint32(p.buf[:], v)
	p.bytes(p.buf[:])
}

// rows writes the row byte counts of every channel followed by the rows
func (p *psdWriter) rows(channels [][][]byte, height int) {
	for _, ch := range channels {
		for y := 0; y < height; y++ {
			p.u16(uint16(len(ch[y])))
		}
	}
	for _, ch := range channels {
		for _, row := range ch {
			p.bytes(row)
		}
	}
}
