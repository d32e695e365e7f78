// Package inspector flattens component structs into labelled fields driven
// by `inspect` struct tags.
package inspector

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Widget types for presenting fields.
type Widget int

const (
	WidgetAuto Widget = iota
	WidgetLabel
	WidgetBar
	WidgetBool
	WidgetSkip
)

var widgetNames = [...]string{"auto", "label", "bar", "bool", "skip"}

func (w Widget) String() string {
	if w < 0 || int(w) >= len(widgetNames) {
		return "auto"
	}
	return widgetNames[w]
}

// MarshalText encodes the widget by name.
func (w Widget) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// Field represents a component field with presentation hints.
type Field struct {
	Name    string            `json:"name"`
	Value   any               `json:"value"`
	Display string            `json:"display"`
	Widget  Widget            `json:"widget"`
	Options map[string]string `json:"options,omitempty"`
	// Fraction is a bar's fill in [0, 1].
	Fraction float64 `json:"fraction,omitempty"`
}

// ParseTag parses an inspect struct tag.
// Format: `inspect:"widget[,option:value...]"`
// Examples:
//
//	`inspect:"bar"`
//	`inspect:"bar,max:200"`
//	`inspect:"bar,max:MaxEnergy"` (scaled by a sibling field)
//	`inspect:"label,fmt:%.1f"`
//	`inspect:"skip"`
func ParseTag(tag string) (Widget, map[string]string) {
	options := make(map[string]string)

	if tag == "" {
		return WidgetAuto, options
	}

	parts := strings.Split(tag, ",")

	var widget Widget
	switch strings.TrimSpace(parts[0]) {
	case "label":
		widget = WidgetLabel
	case "bar":
		widget = WidgetBar
	case "bool":
		widget = WidgetBool
	case "skip":
		widget = WidgetSkip
	default:
		widget = WidgetAuto
	}

	// Parse options
	for _, part := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) == 2 {
			options[kv[0]] = kv[1]
		}
	}

	return widget, options
}

// ExtractFields uses reflection to extract the exported fields of a
// component struct or pointer to one.
func ExtractFields(component any) []Field {
	v := reflect.ValueOf(component)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	var fields []Field

	for i := 0; i < v.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)

		if !sf.IsExported() {
			continue
		}

		widget, options := ParseTag(sf.Tag.Get("inspect"))
		if widget == WidgetSkip {
			continue
		}
		if widget == WidgetAuto {
			widget = autoDetectWidget(fv)
		}

		value := fv.Interface()
		fields = append(fields, Field{
			Name:    sf.Name,
			Value:   value,
			Display: FormatValue(value, options["fmt"]),
			Widget:  widget,
			Options: options,
		})
	}

	for i := range fields {
		if fields[i].Widget == WidgetBar {
			fields[i].Fraction = barFraction(fields, fields[i])
		}
	}
	return fields
}

// barFraction scales a numeric bar by its max option, which is either a
// number or the name of a sibling field.
func barFraction(fields []Field, f Field) float64 {
	v, ok := GetFloatValue(f.Value)
	if !ok {
		return 0
	}
	limit := GetMax(f.Options)
	if ref, found := Find(fields, f.Options["max"]); found {
		if l, ok := GetFloatValue(ref.Value); ok {
			limit = l
		}
	}
	if limit <= 0 {
		return 0
	}
	return min(max(v/limit, 0), 1)
}

// autoDetectWidget chooses a widget based on the field type.
func autoDetectWidget(v reflect.Value) Widget {
	switch v.Kind() {
	case reflect.Bool:
		return WidgetBool
	case reflect.Array, reflect.Slice:
		return WidgetBar
	default:
		return WidgetLabel
	}
}

// FormatValue formats a field value as a string.
func FormatValue(value any, fmtStr string) string {
	if fmtStr == "" {
		switch v := value.(type) {
		case float32:
			return fmt.Sprintf("%.2f", v)
		case float64:
			return fmt.Sprintf("%.2f", v)
		default:
			return fmt.Sprintf("%v", value)
		}
	}
	return fmt.Sprintf(fmtStr, value)
}

// GetMax returns the max option as a float, defaulting to 1.0.
func GetMax(options map[string]string) float64 {
	if maxStr, ok := options["max"]; ok {
		if limit, err := strconv.ParseFloat(maxStr, 64); err == nil {
			return limit
		}
	}
	return 1.0
}

// GetFloatValue extracts a float64 from numeric values.
func GetFloatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Find returns the field with the given name.
func Find(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
