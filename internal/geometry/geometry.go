// Package geometry describes the pixel layout of a calendar canvas and the
// named presets used for previews and print production.
package geometry

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
)

// Segments is the number of month segments stacked on the backing
const Segments = 3

// Geometry is the layout of a header and a backing at one resolution.
// All lengths are pixels at DPI. Scale relates this geometry to the
// production coordinate space that description values (font sizes, year
// position, overlay offsets) are expressed in.
type Geometry struct {
	Name  string
	DPI   float64
	Scale float64

	HeaderWidth  int
	HeaderHeight int
	BackingWidth int

	MonthBoxWidth  int
	MonthBoxHeight int
	MarginY        int
	StripHeight    int
	StripPaddingX  int
	BorderWidth    int

	MonthLabelSize float64
	MonthLabelTop  int
	GridLabelSize  float64
}

// SegmentHeight is margin + month box + margin + strip
func (g Geometry) SegmentHeight() int {
	return g.MarginY + g.MonthBoxHeight + g.MarginY + g.StripHeight
}

// BackingHeight is the height of the three stacked segments
func (g Geometry) BackingHeight() int {
	return Segments * g.SegmentHeight()
}

// CombinedSize is the canvas size when header and backing share one file
func (g Geometry) CombinedSize() (int, int) {
	return g.BackingWidth, g.HeaderHeight + g.BackingHeight()
}

// StripContentWidth is the drawable width inside an advertising strip
func (g Geometry) StripContentWidth() int {
	return g.BackingWidth - 2*g.StripPaddingX
}

// MonthBox returns the calendar box rectangle of segment i relative to the
// top of the backing
func (g Geometry) MonthBox(i int) image.Rectangle {
	x := (g.BackingWidth - g.MonthBoxWidth) / 2
	y := i*g.SegmentHeight() + g.MarginY
	return image.Rect(x, y, x+g.MonthBoxWidth, y+g.MonthBoxHeight)
}

// Strip returns the advertising strip content rectangle of segment i
// relative to the top of the backing
func (g Geometry) Strip(i int) image.Rectangle {
	y := i*g.SegmentHeight() + g.MarginY + g.MonthBoxHeight + g.MarginY
	return image.Rect(g.StripPaddingX, y, g.StripPaddingX+g.StripContentWidth(), y+g.StripHeight)
}

// Px converts a length from production coordinates to this geometry
func (g Geometry) Px(v float64) float64 {
	if g.Scale <= 0 {
		return v
	}
	return v * g.Scale
}

// Scaled returns a copy of g with every length multiplied by factor.
// Lengths never drop below one pixel.
func (g Geometry) Scaled(name string, factor float64) Geometry {
	px := func(v int) int {
		s := int(math.Round(float64(v) * factor))
		if s < 1 && v > 0 {
			return 1
		}
		return s
	}

	base := g.Scale
	if base <= 0 {
		base = 1
	}

	return Geometry{
		Name:           name,
		DPI:            g.DPI * factor,
		Scale:          base * factor,
		HeaderWidth:    px(g.HeaderWidth),
		HeaderHeight:   px(g.HeaderHeight),
		BackingWidth:   px(g.BackingWidth),
		MonthBoxWidth:  px(g.MonthBoxWidth),
		MonthBoxHeight: px(g.MonthBoxHeight),
		MarginY:        px(g.MarginY),
		StripHeight:    px(g.StripHeight),
		StripPaddingX:  px(g.StripPaddingX),
		BorderWidth:    px(g.BorderWidth),
		MonthLabelSize: g.MonthLabelSize * factor,
		MonthLabelTop:  px(g.MonthLabelTop),
		GridLabelSize:  g.GridLabelSize * factor,
	}
}

// Validate checks that the regions fit inside each other
func (g Geometry) Validate() error {
	if g.DPI <= 0 {
		return fmt.Errorf("geometry %s: dpi must be positive", g.Name)
	}
	if g.HeaderWidth <= 0 || g.HeaderHeight <= 0 || g.BackingWidth <= 0 {
		return fmt.Errorf("geometry %s: header and backing sizes must be positive", g.Name)
	}
	if g.MonthBoxWidth > g.BackingWidth {
		return fmt.Errorf("geometry %s: month box width %d exceeds backing width %d", g.Name, g.MonthBoxWidth, g.BackingWidth)
	}
	if g.StripContentWidth() <= 0 || g.StripHeight <= 0 {
		return fmt.Errorf("geometry %s: strip content area is empty", g.Name)
	}
	return nil
}

// PxToMM converts pixels at dpi to millimetres
func PxToMM(px int, dpi float64) float64 {
	return float64(px) / dpi * 25.4
}

// MMToPx converts millimetres to pixels at dpi
func MMToPx(mm, dpi float64) int {
	return int(math.Round(mm / 25.4 * dpi))
}

// CMToPx converts centimetres to pixels at dpi
func CMToPx(cm, dpi float64) int {
	return MMToPx(cm*10, dpi)
}

var (
	presetsMu sync.RWMutex
	presets   = map[string]Geometry{}
)

// Register adds or replaces a named preset
func Register(g Geometry) {
	presetsMu.Lock()
	defer presetsMu.Unlock()
	presets[g.Name] = g
}

// Preset returns a named preset
func Preset(name string) (Geometry, error) {
	presetsMu.RLock()
	g, ok := presets[name]
	presetsMu.RUnlock()
	if !ok {
		return Geometry{}, fmt.Errorf("unknown geometry preset: %s", name)
	}
	return g, nil
}

// Names lists registered presets in alphabetical order
func Names() []string {
	presetsMu.RLock()
	defer presetsMu.RUnlock()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
