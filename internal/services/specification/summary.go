package specification

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed specification. Content that is not a YAML mapping
// yields a nil document.
type Document map[string]any

// Summary holds the fields derived once from the content when a version is created.
type Summary struct {
	PrimaryDimensions string
	PrimaryColors     []string
	MaterialType      string
	Confidence        *float64
}

func ParseDocument(content string) Document {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil
	}

	return doc
}

func Summarize(content string) Summary {
	doc := ParseDocument(content)
	if doc == nil {
		return Summary{}
	}

	return Summary{
		PrimaryDimensions: doc.dimensions(),
		PrimaryColors:     doc.colors(),
		MaterialType:      doc.str("materials", "primary_material", "type"),
		Confidence:        doc.float("metadata", "confidence_overall"),
	}
}

// CriticalSpecs lists the properties that generation prompts emphasise.
func (d Document) CriticalSpecs() []string {
	if d == nil {
		return nil
	}

	var items []string
	for _, axis := range []string{"width", "height", "depth"} {
		if value := d.str("dimensions", "primary", axis, "value"); value != "" {
			unit := d.str("dimensions", "primary", axis, "unit")
			if unit == "" {
				unit = "mm"
			}
			items = append(items, fmt.Sprintf("- %s: %s%s", title(axis), value, unit))
		}
	}

	if colors := d.colors(); len(colors) > 0 {
		items = append(items, "- Colors: "+strings.Join(colors, ", "))
	}
	if finish := d.str("materials", "primary_material", "finish"); finish != "" {
		items = append(items, "- Finish: "+finish)
	}
	if transparency := d.str("materials", "primary_material", "transparency"); transparency != "" {
		items = append(items, "- Transparency: "+transparency)
	}
	if placement := d.str("branding", "logo", "placement"); placement != "" {
		items = append(items, "- Logo placement: "+placement)
	}
	if position := d.str("packaging", "label", "position"); position != "" {
		items = append(items, "- Label position: "+position)
	}

	return items
}

func (d Document) dimensions() string {
	var parts []string
	for _, axis := range []string{"width", "height", "depth"} {
		if value := d.str("dimensions", "primary", axis, "value"); value != "" {
			parts = append(parts, value)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	unit := d.str("dimensions", "primary", "width", "unit")
	if unit == "" {
		unit = "mm"
	}

	return strings.Join(parts, " x ") + " " + unit
}

func (d Document) colors() []string {
	var colors []string

	// visual_characteristics.primary_colors may be a list of names or of {name, hex}.
	if list, ok := d.lookup("visual_characteristics", "primary_colors").([]any); ok {
		for _, item := range list {
			if c := colorString(item); c != "" {
				colors = append(colors, c)
			}
		}
	}

	if len(colors) == 0 {
		if c := colorString(d.lookup("colors", "primary")); c != "" {
			colors = append(colors, c)
		}
	}

	return colors
}

func colorString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		hex, _ := v["hex"].(string)
		if hex == "" {
			return ""
		}
		name, _ := v["name"].(string)
		if name == "" {
			name = "Color"
		}
		return fmt.Sprintf("%s (%s)", name, hex)
	}

	return ""
}

func (d Document) lookup(path ...string) any {
	var current any = map[string]any(d)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}

	return current
}

func (d Document) str(path ...string) string {
	switch v := d.lookup(path...).(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}

	return ""
}

func (d Document) float(path ...string) *float64 {
	var f float64
	switch v := d.lookup(path...).(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	return &f
}

func title(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
