package calendarformat

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Defaults applied while parsing
const (
	DefaultFont       = "Arial"
	DefaultTextSize   = 200.0
	MinTextSize       = 10.0
	DefaultTextColor  = "#000000"
	DefaultYearText   = "2026"
	DefaultYearSize   = 400.0
	DefaultYearColor  = "#d40808"
	DefaultYearX      = 50.0
	DefaultYearY      = 50.0
	DefaultStartMonth = 12
	DefaultLocale     = "pl"
	DefaultQRSize     = 300
	DefaultBarHeight  = 200
)

// number accepts JSON numbers and numeric strings such as "400.0".
// Anything else leaves it unset so the field default applies.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n.value, n.set = v, true
	return nil
}

func (n number) or(def float64) float64 {
	if n.set {
		return n.value
	}
	return def
}

// text accepts JSON strings and numbers (a year is often sent as 2026)
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*t = text(str)
		return nil
	}
	*t = text(s)
	return nil
}

type document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Mode        string          `json:"mode"`
	HeaderImage string          `json:"header_image"`
	Header      *headerDoc      `json:"header"`
	Year        *yearDoc        `json:"year"`
	YearData    *yearDoc        `json:"year_data"`
	Background  *backgroundDoc  `json:"background"`
	Bottom      *legacyBottom   `json:"bottom"`
	StartMonth  number          `json:"start_month"`
	Locale      string          `json:"locale"`
	Segments    []segmentDoc    `json:"segments"`
	Fields      json.RawMessage `json:"fields"`
}

type headerDoc struct {
	Image string `json:"image"`
}

type yearDoc struct {
	Text      text   `json:"text"`
	Font      string `json:"font"`
	Size      number `json:"size"`
	Color     string `json:"color"`
	X         number `json:"x"`
	Y         number `json:"y"`
	PositionX number `json:"positionX"`
	PositionY number `json:"positionY"`
	Bold      bool   `json:"bold"`
	Weight    string `json:"weight"`
}

type backgroundDoc struct {
	Type    string `json:"type"`
	Color   string `json:"color"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Theme   string `json:"theme"`
	Variant string `json:"variant"`
	Source  string `json:"source"`
}

type legacyBottom struct {
	BottomType        string `json:"bottom_type"`
	Style             string `json:"style"`
	BottomColor       string `json:"bottom_color"`
	GradientStart     string `json:"gradient_start_color"`
	GradientEnd       string `json:"gradient_end_color"`
	GradientDirection string `json:"gradient_direction"`
	GradientTheme     string `json:"gradient_theme"`
	ImagePath         string `json:"image_path"`
}

type segmentDoc struct {
	Month  string     `json:"month"`
	Fields []fieldDoc `json:"fields"`
}

type fieldDoc struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Font        string `json:"font"`
	Size        number `json:"size"`
	Color       string `json:"color"`
	Bold        bool   `json:"bold"`
	Weight      string `json:"weight"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url"`
	Scale       number `json:"scale"`
	X           number `json:"x"`
	Y           number `json:"y"`
	PositionX   number `json:"positionX"`
	PositionY   number `json:"positionY"`
	Value       string `json:"value"`
	FieldNumber number `json:"field_number"`
}

// Parse parses a calendar description from a byte slice
func Parse(data []byte) (*Calendar, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	cal := &Calendar{
		ID:          doc.ID,
		Name:        doc.Name,
		Mode:        Mode(strings.ToLower(doc.Mode)),
		HeaderImage: doc.HeaderImage,
		StartMonth:  int(doc.StartMonth.or(DefaultStartMonth)),
		Locale:      strings.ToLower(doc.Locale),
	}
	if cal.Mode == "" {
		cal.Mode = ModeSplit
	}
	if cal.Locale == "" {
		cal.Locale = DefaultLocale
	}
	if cal.HeaderImage == "" && doc.Header != nil {
		cal.HeaderImage = doc.Header.Image
	}

	year := doc.Year
	if year == nil {
		year = doc.YearData
	}
	if year != nil {
		cal.Year = year.label()
	}

	switch {
	case doc.Background != nil:
		cal.Background = doc.Background.background()
	case doc.Bottom != nil:
		cal.Background = doc.Bottom.background()
	}

	if len(doc.Segments) > 0 {
		if len(doc.Segments) != SegmentCount {
			return nil, fmt.Errorf("segments: expected %d, got %d", SegmentCount, len(doc.Segments))
		}
		for i, s := range doc.Segments {
			cal.Segments[i].Month = s.Month
			for j, f := range s.Fields {
				field, err := f.field()
				if err != nil {
					return nil, fmt.Errorf("segment[%d] field[%d]: %w", i, j, err)
				}
				cal.Segments[i].Fields = append(cal.Segments[i].Fields, field)
			}
		}
	} else if len(doc.Fields) > 0 {
		if err := parseLegacyFields(doc.Fields, cal); err != nil {
			return nil, err
		}
	}

	if err := Validate(cal); err != nil {
		return nil, err
	}

	return cal, nil
}

// ParseFile parses a calendar description from disk
func ParseFile(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}

	return Parse(data)
}

func (y *yearDoc) label() *YearLabel {
	l := &YearLabel{
		Text:  string(y.Text),
		Font:  y.Font,
		Size:  y.Size.or(DefaultYearSize),
		Color: y.Color,
		X:     y.X.or(y.PositionX.or(DefaultYearX)),
		Y:     y.Y.or(y.PositionY.or(DefaultYearY)),
		Bold:  y.Bold || strings.EqualFold(y.Weight, "bold"),
	}
	if l.Text == "" {
		l.Text = DefaultYearText
	}
	if l.Font == "" {
		l.Font = DefaultFont
	}
	if l.Color == "" {
		l.Color = DefaultYearColor
	}
	if l.Size < MinTextSize {
		l.Size = DefaultYearSize
	}
	return l
}

func (b *backgroundDoc) background() Background {
	switch strings.ToLower(b.Type) {
	case "image":
		return ImageBackground{Source: b.Source}
	case "gradient", "theme-gradient":
		return newGradient(b.Start, b.End, b.Theme, b.Variant)
	default:
		hex := b.Color
		if hex == "" {
			hex = b.Start
		}
		return SolidColor{Hex: hex}
	}
}

// background maps the legacy bottom block (style1/2/3, bottom_type) onto
// the background variants
func (b *legacyBottom) background() Background {
	kind := strings.ToLower(b.BottomType)
	switch b.Style {
	case "style1":
		kind = "color"
	case "style2":
		kind = "gradient"
	case "style3":
		kind = "image"
	}
	if kind == "" && b.ImagePath != "" {
		kind = "image"
	}

	switch kind {
	case "image":
		return ImageBackground{Source: b.ImagePath}
	case "gradient", "theme-gradient":
		start := b.GradientStart
		if start == "" {
			start = b.BottomColor
		}
		return newGradient(start, b.GradientEnd, b.GradientTheme, directionVariant(b.GradientDirection))
	default:
		return SolidColor{Hex: b.BottomColor}
	}
}

func newGradient(start, end, theme, variant string) Gradient {
	g := Gradient{
		StartHex: start,
		EndHex:   end,
		Theme:    strings.ToLower(theme),
		Variant:  strings.ToLower(variant),
	}
	if g.Theme == "" {
		g.Theme = ThemeClassic
	}
	if g.Variant == "" {
		g.Variant = VariantDiagonal
	}
	return g
}

// directionVariant translates CSS-like directions stored by older clients
func directionVariant(direction string) string {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "to bottom", "vertical", "180deg":
		return VariantVertical
	case "to right", "horizontal", "90deg":
		return VariantHorizontal
	case "radial", "circle":
		return VariantRadial
	default:
		return VariantDiagonal
	}
}

func (f *fieldDoc) source() string {
	switch {
	case f.Source != "":
		return f.Source
	case f.URL != "":
		return f.URL
	default:
		return f.ImageURL
	}
}

func (f *fieldDoc) field() (Field, error) {
	kind := strings.ToLower(f.Type)
	if kind == "" {
		switch {
		case f.Text != "":
			kind = "text"
		case f.source() != "":
			kind = "image"
		case f.Value != "":
			kind = string(CodeQR)
		}
	}

	switch kind {
	case "text":
		size := f.Size.or(DefaultTextSize)
		if size < MinTextSize {
			size = DefaultTextSize
		}
		field := TextField{
			Text:  f.Text,
			Font:  f.Font,
			Size:  size,
			Color: f.Color,
			Bold:  f.Bold || strings.EqualFold(f.Weight, "bold"),
		}
		if field.Font == "" {
			field.Font = DefaultFont
		}
		if field.Color == "" {
			field.Color = DefaultTextColor
		}
		return field, nil
	case "image":
		scale := f.Scale.or(1)
		if scale <= 0 {
			scale = 1
		}
		return ImageField{
			Source:  f.source(),
			Scale:   scale,
			OffsetX: int(f.X.or(f.PositionX.or(0))),
			OffsetY: int(f.Y.or(f.PositionY.or(0))),
		}, nil
	case "qr", "code128", "ean13":
		size := DefaultQRSize
		if kind != "qr" {
			size = DefaultBarHeight
		}
		if f.Size.set && f.Size.value > 0 {
			size = int(f.Size.value)
		}
		field := CodeField{
			Kind:    CodeKind(kind),
			Value:   f.Value,
			Size:    size,
			OffsetX: int(f.X.or(f.PositionX.or(0))),
			OffsetY: int(f.Y.or(f.PositionY.or(0))),
			Color:   f.Color,
		}
		if field.Color == "" {
			field.Color = DefaultTextColor
		}
		return field, nil
	case "":
		return nil, fmt.Errorf("field has no content")
	default:
		return nil, fmt.Errorf("unsupported field type: %s", f.Type)
	}
}

// parseLegacyFields reads the older flat "fields" object: keys "1".."3"
// carry strip text and overlay placement, any other entry with a
// field_number and image_url is an overlay for that segment.
func parseLegacyFields(raw json.RawMessage, cal *Calendar) error {
	var entries map[string]fieldDoc
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to parse fields: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i := 1; i <= SegmentCount; i++ {
		cfg, ok := entries[strconv.Itoa(i)]
		if ok && cfg.Text != "" {
			cfg.Type = "text"
			field, err := cfg.field()
			if err != nil {
				return fmt.Errorf("fields[%d]: %w", i, err)
			}
			cal.Segments[i-1].Fields = append(cal.Segments[i-1].Fields, field)
		}

		for _, k := range keys {
			e := entries[k]
			if int(e.FieldNumber.or(0)) != i || e.ImageURL == "" {
				continue
			}
			overlay := ImageField{
				Source:  e.ImageURL,
				Scale:   e.Scale.or(cfg.Scale.or(1)),
				OffsetX: int(e.PositionX.or(cfg.PositionX.or(0))),
				OffsetY: int(e.PositionY.or(cfg.PositionY.or(0))),
			}
			if overlay.Scale <= 0 {
				overlay.Scale = 1
			}
			cal.Segments[i-1].Fields = append(cal.Segments[i-1].Fields, overlay)
		}
	}

	return nil
}
