package export

import (
	"fmt"
	"regexp"
	"strings"
)

// Format is an export file type.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts pdf, html and md (or markdown).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "html", "htm":
		return FormatHTML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// unsafeRun matches whitespace, path separators and any other character
// that does not belong in a file name.
var unsafeRun = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// Slug lowercases the topic and replaces each run of whitespace or other
// unsafe characters with a dash. Leading dots and outer dashes are dropped
// so the result is never hidden or a relative path element.
func Slug(topic string) string {
	slug := unsafeRun.ReplaceAllString(strings.ToLower(topic), "-")
	slug = strings.TrimRight(strings.TrimLeft(slug, ".-"), "-")
	if slug == "" {
		return "report"
	}
	return slug
}

// Filename returns research-<slug>.<ext>.
func Filename(topic string, f Format) string {
	return "research-" + Slug(topic) + "." + string(f)
}
