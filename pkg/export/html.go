package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

func sanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("type", "checked", "disabled").OnElements("input")
	return p
}

// RenderHTML converts report markdown into a sanitized HTML fragment with
// the print theme inlined on every element.
func RenderHTML(report string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(report), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	clean := sanitizer().SanitizeBytes(buf.Bytes())
	return restyleFragment(string(clean))
}

func restyleFragment(fragment string) (string, error) {
	container := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := xhtml.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return "", fmt.Errorf("failed to parse report html: %w", err)
	}

	var out bytes.Buffer
	for _, n := range nodes {
		restyleTree(n)
		if err := xhtml.Render(&out, n); err != nil {
			return "", fmt.Errorf("failed to write report html: %w", err)
		}
	}
	return out.String(), nil
}

func restyleTree(n *xhtml.Node) {
	if n.Type == xhtml.ElementNode {
		restyleNode(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		restyleTree(c)
	}
}

func restyleNode(n *xhtml.Node) {
	idx := -1
	existing := ""
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == "style" {
			idx, existing = i, a.Val
			break
		}
	}

	var style string
	if _, themed := printStyles[n.Data]; themed {
		style = Restyle(n.Data, existing)
	} else if existing != "" {
		style = NeutralizeStyle(existing)
	} else {
		return
	}

	if idx >= 0 {
		n.Attr[idx].Val = style
		return
	}
	n.Attr = append(n.Attr, xhtml.Attribute{Key: "style", Val: style})
}

const documentCSS = `@page { size: A4; margin: 0; }
html, body { margin: 0; padding: 0; background: #ffffff; }
.report {
  box-sizing: border-box;
  width: 210mm;
  padding: 40px;
  background: #ffffff;
  color: #000000;
  font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif;
  font-size: 16px;
  line-height: 1.6;
}
.report pre, .report code { font-family: Menlo, Consolas, monospace; font-size: 14px; }
.report pre { background: #f3f4f6; padding: 12px; white-space: pre-wrap; }
.report img { max-width: 100%; }`

// Document wraps a fragment in a standalone 210mm-wide white page.
func Document(title, fragment string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	b.WriteString("<title>" + html.EscapeString(title) + "</title>")
	b.WriteString("<style>\n" + documentCSS + "\n</style></head>\n")
	b.WriteString("<body><div class=\"report\">\n")
	b.WriteString(fragment)
	b.WriteString("\n</div></body></html>\n")
	return b.String()
}
