//go:build !imagick

package output

// newMagickEncoder reports that ImageMagick support is not compiled in
func newMagickEncoder(Format) (Encoder, bool) {
	return nil, false
}
