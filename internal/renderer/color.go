package renderer

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// HexToRGB parses "#rrggbb" or "#rgb". Malformed input yields white.
func HexToRGB(hex string) color.NRGBA {
	c, ok := parseHex(hex)
	if !ok {
		return white
	}
	return c
}

// RGBToHex formats c as "#rrggbb", ignoring alpha
func RGBToHex(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}

func parseHex(hex string) (color.NRGBA, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
