package geometry

// Preset names
const (
	PresetClassic   = "classic-300dpi"
	PresetPrint2026 = "print-2026"
	PresetLegacy150 = "legacy-150dpi"
	PresetPreview   = "preview"
)

// DefaultPreset is used when configuration names none
const DefaultPreset = PresetPrint2026

// Classic is the single-width 300 DPI layout: a 3661 px wide canvas with a
// 2480 px header and three 25+1594+25+768 px segments.
var Classic = Geometry{
	Name:           PresetClassic,
	DPI:            300,
	Scale:          1,
	HeaderWidth:    3661,
	HeaderHeight:   2480,
	BackingWidth:   3661,
	MonthBoxWidth:  3425,
	MonthBoxHeight: 1594,
	MarginY:        25,
	StripHeight:    768,
	StripPaddingX:  112,
	BorderWidth:    5,
	MonthLabelSize: 150,
	MonthLabelTop:  40,
	GridLabelSize:  100,
}

// Print2026 matches the print shop's current sheets: header 335x225 mm and
// backing 321x641 mm at 300 DPI.
var Print2026 = Geometry{
	Name:           PresetPrint2026,
	DPI:            300,
	Scale:          1,
	HeaderWidth:    3957,
	HeaderHeight:   2658,
	BackingWidth:   3789,
	MonthBoxWidth:  3553,
	MonthBoxHeight: 1680,
	MarginY:        25,
	StripHeight:    794,
	StripPaddingX:  118,
	BorderWidth:    5,
	MonthLabelSize: 150,
	MonthLabelTop:  40,
	GridLabelSize:  100,
}

// Legacy150 is the 31x81 cm sheet laid out at 150 DPI.
var Legacy150 = Geometry{
	Name:           PresetLegacy150,
	DPI:            150,
	Scale:          0.5,
	HeaderWidth:    CMToPx(31, 150),
	HeaderHeight:   CMToPx(21, 150),
	BackingWidth:   CMToPx(31, 150),
	MonthBoxWidth:  CMToPx(28, 150),
	MonthBoxHeight: CMToPx(12.4, 150),
	MarginY:        CMToPx(0.9, 150),
	StripHeight:    CMToPx(4.9, 150),
	StripPaddingX:  CMToPx(1.5, 150),
	BorderWidth:    2,
	MonthLabelSize: 75,
	MonthLabelTop:  20,
	GridLabelSize:  50,
}

// Preview is a quarter-resolution copy of Classic for on-screen checks
var Preview = Classic.Scaled(PresetPreview, 0.25)

func init() {
	Register(Classic)
	Register(Print2026)
	Register(Legacy150)
	Register(Preview)
}
