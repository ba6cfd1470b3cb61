package export

import (
	"strings"
)

// Light print theme applied per element. Later declarations win over
// whatever the element already carried.
var printStyles = map[string]string{
	"h1":         "font-size:36px;font-weight:700;margin-bottom:24px;padding-bottom:16px;border-bottom:2px solid #d1d5db;color:#000000",
	"h2":         "font-size:24px;font-weight:700;margin-bottom:16px;margin-top:32px;color:#000000",
	"h3":         "font-size:20px;font-weight:600;margin-bottom:12px;margin-top:24px;color:#1f2937",
	"p":          "color:#111827",
	"li":         "color:#111827",
	"span":       "color:#111827",
	"strong":     "color:#111827",
	"table":      "width:100%;border-collapse:collapse;text-align:left;margin:24px 0;border:1px solid #d1d5db",
	"thead":      "background-color:#f3f4f6;color:#000000;font-weight:700",
	"th":         "padding:12px;border-bottom:2px solid #d1d5db;font-weight:700;color:#000000",
	"td":         "padding:12px;border-bottom:1px solid #e5e7eb;color:#1f2937",
	"blockquote": "border-left:4px solid #3b82f6;background-color:#f9fafb;padding:16px;border-radius:0 4px 4px 0;margin:24px 0;font-style:italic;color:#374151",
	"a":          "color:#2563eb;text-decoration:underline",
}

type declaration struct {
	prop  string
	value string
}

type declarations []declaration

func parseStyle(style string) declarations {
	var ds declarations
	for _, part := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" || value == "" {
			continue
		}
		ds = ds.set(prop, value)
	}
	return ds
}

func (ds declarations) get(prop string) string {
	for _, d := range ds {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

func (ds declarations) set(prop, value string) declarations {
	for i := range ds {
		if ds[i].prop == prop {
			ds[i].value = value
			return ds
		}
	}
	return append(ds, declaration{prop: prop, value: value})
}

func (ds declarations) String() string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, d.prop+":"+d.value)
	}
	return strings.Join(parts, ";")
}

// unsupportedColor matches the color functions the rasterizer cannot paint.
func unsupportedColor(v string) bool {
	v = strings.ToLower(v)
	return strings.Contains(v, "oklch(") || strings.Contains(v, "lab(") || strings.Contains(v, "lch(")
}

func isBorderColor(prop string) bool {
	return prop == "border-color" ||
		(strings.HasPrefix(prop, "border-") && strings.HasSuffix(prop, "-color"))
}

// NeutralizeStyle rewrites an inline style so it only uses plain colors:
// gradients become a white background, oklch/lab/lch colors become black
// text, white backgrounds and grey borders, and clipped gradient text
// becomes solid black.
func NeutralizeStyle(style string) string {
	ds := parseStyle(style)

	gradient := false
	for i, d := range ds {
		switch {
		case (d.prop == "background-image" || d.prop == "background") && strings.Contains(strings.ToLower(d.value), "gradient"):
			gradient = true
			ds[i].prop, ds[i].value = "background-image", "none"
		case d.prop == "color" && unsupportedColor(d.value):
			ds[i].value = "#000000"
		case d.prop == "background-color" && unsupportedColor(d.value):
			ds[i].value = "#ffffff"
		case isBorderColor(d.prop) && unsupportedColor(d.value):
			ds[i].value = "#cccccc"
		}
	}
	if gradient {
		ds = ds.set("background-color", "#ffffff")
	}

	clipped := false
	for _, prop := range []string{"background-clip", "-webkit-background-clip"} {
		if strings.EqualFold(ds.get(prop), "text") {
			ds = ds.set(prop, "border-box")
			clipped = true
		}
	}
	if clipped {
		ds = ds.set("color", "#000000")
	}
	return ds.String()
}

// Restyle merges the print theme for tag into an existing inline style
// and neutralizes the result.
func Restyle(tag, existing string) string {
	ds := parseStyle(existing)
	for _, d := range parseStyle(printStyles[tag]) {
		ds = ds.set(d.prop, d.value)
	}
	return NeutralizeStyle(ds.String())
}
