package calendarformat

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// Validate validates a Calendar structure
func Validate(c *Calendar) error {
	switch c.Mode {
	case ModeSplit, ModeCombined:
	default:
		return fmt.Errorf("invalid mode: %s (must be split or combined)", c.Mode)
	}

	if c.StartMonth < 1 || c.StartMonth > 12 {
		return fmt.Errorf("invalid start_month: %d (must be 1-12)", c.StartMonth)
	}

	if _, ok := monthNames[c.Locale]; !ok {
		return fmt.Errorf("unsupported locale: %s", c.Locale)
	}

	if c.Background == nil {
		return fmt.Errorf("background is required")
	}
	if bg, ok := c.Background.(ImageBackground); ok && strings.TrimSpace(bg.Source) == "" {
		return fmt.Errorf("background: image source is required")
	}

	if c.Year != nil && strings.TrimSpace(c.Year.Text) == "" {
		return fmt.Errorf("year: text is empty")
	}

	for i, seg := range c.Segments {
		for j, f := range seg.Fields {
			if err := validateField(f); err != nil {
				return fmt.Errorf("segment[%d] field[%d]: %w", i, j, err)
			}
		}
	}

	return nil
}

func validateField(f Field) error {
	switch v := f.(type) {
	case TextField:
		if v.Size < MinTextSize {
			return fmt.Errorf("text size %.0f is below %.0f", v.Size, MinTextSize)
		}
	case ImageField:
		if strings.TrimSpace(v.Source) == "" {
			return fmt.Errorf("image source is required")
		}
		if v.Scale <= 0 {
			return fmt.Errorf("image scale must be positive")
		}
	case CodeField:
		if v.Value == "" {
			return fmt.Errorf("%s value is required", v.Kind)
		}
		if v.Size <= 0 {
			return fmt.Errorf("%s size must be positive", v.Kind)
		}
		switch v.Kind {
		case CodeQR, CodeCode128:
		case CodeEAN13:
			if len(v.Value) != 12 && len(v.Value) != 13 {
				return fmt.Errorf("ean13 value must have 12 or 13 digits, got %d", len(v.Value))
			}
			for _, r := range v.Value {
				if r < '0' || r > '9' {
					return fmt.Errorf("ean13 value must be numeric")
				}
			}
		default:
			return fmt.Errorf("unsupported code kind: %s", v.Kind)
		}
	case nil:
		return fmt.Errorf("field is empty")
	default:
		return fmt.Errorf("unsupported field %T", f)
	}
	return nil
}

// ValidateJSON checks raw description bytes against the embedded JSON schema
func ValidateJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("calendar does not conform to schema: %s", strings.Join(msgs, "; "))
}
