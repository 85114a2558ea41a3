// Package calendarformat defines the calendar description document
// consumed by the rendering pipeline.
package calendarformat

// Mode selects how the rendered calendar is split into files
type Mode string

const (
	// ModeSplit produces a header file and a backing file
	ModeSplit Mode = "split"
	// ModeCombined produces one file with the header on top of the backing
	ModeCombined Mode = "combined"
)

// SegmentCount is the number of monthly segments on every backing
const SegmentCount = 3

// Calendar is a fully parsed calendar description
type Calendar struct {
	ID          string
	Name        string
	Mode        Mode
	HeaderImage string // asset reference, empty when no header image was chosen
	Year        *YearLabel
	Background  Background
	Segments    [SegmentCount]Segment
	StartMonth  int    // month of the first segment, 1-12
	Locale      string // month name language: pl or en
}

// AssetRefs lists the image references the calendar draws: header,
// image background, then overlays in segment order
func (c *Calendar) AssetRefs() []string {
	var refs []string
	if c.HeaderImage != "" {
		refs = append(refs, c.HeaderImage)
	}
	if bg, ok := c.Background.(ImageBackground); ok && bg.Source != "" {
		refs = append(refs, bg.Source)
	}
	for _, seg := range c.Segments {
		for _, f := range seg.Fields {
			if img, ok := f.(ImageField); ok && img.Source != "" {
				refs = append(refs, img.Source)
			}
		}
	}
	return refs
}

// YearLabel is the large year text drawn on the header
type YearLabel struct {
	Text  string
	Font  string
	Size  float64
	Color string
	X     float64
	Y     float64
	Bold  bool
}

// Segment is one month box plus its advertising strip
type Segment struct {
	Month  string // explicit label; derived from StartMonth when empty
	Fields []Field
}

// Field is something drawn inside an advertising strip.
// Implementations: TextField, ImageField, CodeField.
type Field interface {
	fieldKind() string
}

// TextField is centered, word-wrapped advertising text
type TextField struct {
	Text  string
	Font  string
	Size  float64
	Color string
	Bold  bool
}

// ImageField is an image overlay placed inside the strip
type ImageField struct {
	Source  string
	Scale   float64
	OffsetX int
	OffsetY int
}

// CodeKind is the symbology of a CodeField
type CodeKind string

const (
	CodeQR      CodeKind = "qr"
	CodeCode128 CodeKind = "code128"
	CodeEAN13   CodeKind = "ean13"
)

// CodeField is a QR code or barcode placed inside the strip
type CodeField struct {
	Kind    CodeKind
	Value   string
	Size    int // QR side or barcode height in pixels
	OffsetX int
	OffsetY int
	Color   string
}

func (TextField) fieldKind() string  { return "text" }
func (ImageField) fieldKind() string { return "image" }
func (CodeField) fieldKind() string  { return "code" }

// Background is the fill of the backing region.
// Implementations: SolidColor, Gradient, ImageBackground.
type Background interface {
	backgroundKind() string
}

// SolidColor fills the backing with one color
type SolidColor struct {
	Hex string
}

// Gradient themes
const (
	ThemeClassic = "classic"
	ThemeAurora  = "aurora"
	ThemeLiquid  = "liquid"
	ThemeMesh    = "mesh"
	ThemeWaves   = "waves"
)

// Classic gradient variants
const (
	VariantVertical   = "vertical"
	VariantHorizontal = "horizontal"
	VariantRadial     = "radial"
	VariantDiagonal   = "diagonal"
)

// Gradient is a two-color procedural fill
type Gradient struct {
	StartHex string
	EndHex   string
	Theme    string
	Variant  string // used by the classic theme only
}

// ImageBackground cover-fits an image into the backing
type ImageBackground struct {
	Source string
}

func (SolidColor) backgroundKind() string      { return "color" }
func (Gradient) backgroundKind() string        { return "gradient" }
func (ImageBackground) backgroundKind() string { return "image" }

// KindOf returns the document name of a field or background variant
func KindOf(v interface{}) string {
	switch t := v.(type) {
	case Field:
		return t.fieldKind()
	case Background:
		return t.backgroundKind()
	}
	return ""
}

var monthNames = map[string][12]string{
	"pl": {"STYCZEŃ", "LUTY", "MARZEC", "KWIECIEŃ", "MAJ", "CZERWIEC", "LIPIEC", "SIERPIEŃ", "WRZESIEŃ", "PAŹDZIERNIK", "LISTOPAD", "GRUDZIEŃ"},
	"en": {"JANUARY", "FEBRUARY", "MARCH", "APRIL", "MAY", "JUNE", "JULY", "AUGUST", "SEPTEMBER", "OCTOBER", "NOVEMBER", "DECEMBER"},
}

// MonthLabel returns the label printed in segment i (0-based)
func (c *Calendar) MonthLabel(i int) string {
	if i >= 0 && i < SegmentCount && c.Segments[i].Month != "" {
		return c.Segments[i].Month
	}
	names, ok := monthNames[c.Locale]
	if !ok {
		names = monthNames[DefaultLocale]
	}
	start := c.StartMonth
	if start < 1 || start > 12 {
		start = DefaultStartMonth
	}
	return names[(start-1+i)%12]
}
