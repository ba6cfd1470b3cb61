package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		topic string
		f     Format
		want  string
	}{
		{"Quantum  Computing", FormatPDF, "research-quantum-computing.pdf"},
		{"AI\tSafety\nNow", FormatHTML, "research-ai-safety-now.html"},
		{"single", FormatMarkdown, "research-single.md"},
		{"TCP/IP networking", FormatPDF, "research-tcp-ip-networking.pdf"},
		{"x/../../escaped", FormatMarkdown, "research-x-..-..-escaped.md"},
		{"../etc/passwd", FormatHTML, "research-etc-passwd.html"},
		{`C:\Users\report`, FormatMarkdown, "research-c-users-report.md"},
		{"Café Économie", FormatPDF, "research-café-économie.pdf"},
		{"   ", FormatPDF, "research-report.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filename(tt.topic, tt.f), tt.topic)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat("markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestNeutralizeStyle(t *testing.T) {
	tests := []struct {
		name  string
		style string
		want  string
	}{
		{"Gradient", "background-image: linear-gradient(red, blue)", "background-image:none;background-color:#ffffff"},
		{"Gradient shorthand", "background: radial-gradient(#fff, #000); color: #111", "background-image:none;color:#111;background-color:#ffffff"},
		{"oklch text", "color: oklch(0.7 0.1 200)", "color:#000000"},
		{"lab background", "background-color: lab(50% 40 59)", "background-color:#ffffff"},
		{"lch border", "border-color: lch(52 72 50)", "border-color:#cccccc"},
		{"Side border", "border-left-color: oklch(0.5 0.2 10)", "border-left-color:#cccccc"},
		{"Clipped text", "background-clip: text; color: transparent", "background-clip:border-box;color:#000000"},
		{"Webkit clip", "-webkit-background-clip:text", "-webkit-background-clip:border-box;color:#000000"},
		{"Plain colors untouched", "color: #123456; margin: 0", "color:#123456;margin:0"},
		{"Garbage dropped", "color; :x; padding: 4px", "padding:4px"},
		{"Empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeutralizeStyle(tt.style))
		})
	}
}

func TestRestyleOverridesExistingDeclarations(t *testing.T) {
	got := Restyle("a", "color: oklch(1 0 0); font-weight: 600")
	assert.Equal(t, "color:#2563eb;font-weight:600;text-decoration:underline", got)
}

func TestRenderHTML(t *testing.T) {
	report := "# Title\n\nSome **bold** text with a [link](https://example.com).\n\n" +
		"| A | B |\n|---|---|\n| 1 | 2 |\n\n> quoted\n\n~~gone~~\n\n" +
		"<script>alert(1)</script>\n\n<p style=\"color: oklch(0.1 0 0)\">raw</p>\n"

	out, err := RenderHTML(report)
	require.NoError(t, err)

	assert.Contains(t, out, `<h1 style="font-size:36px;`)
	assert.Contains(t, out, `<table style="width:100%;`)
	assert.Contains(t, out, `<th style="padding:12px;`)
	assert.Contains(t, out, `<td style="padding:12px;`)
	assert.Contains(t, out, `<blockquote style="border-left:4px solid #3b82f6;`)
	assert.Contains(t, out, `color:#2563eb;text-decoration:underline`)
	assert.Contains(t, out, "<del")
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "oklch")
}

func TestDocumentEscapesTitle(t *testing.T) {
	doc := Document("a <b> & c", "<p>x</p>")
	assert.Contains(t, doc, "<title>a &lt;b&gt; &amp; c</title>")
	assert.Contains(t, doc, "width: 210mm")
	assert.Contains(t, doc, "<p>x</p>")
}

func TestPageOffsets(t *testing.T) {
	tests := []struct {
		name        string
		total, page int
		want        []int
	}{
		{"Empty", 0, 100, []int{0}},
		{"Shorter than a page", 40, 100, []int{0}},
		{"Exact page", 100, 100, []int{0}},
		{"Exact multiple", 300, 100, []int{0, 100, 200}},
		{"One pixel over", 201, 100, []int{0, 100, 200}},
		{"Invalid page", 10, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageOffsets(tt.total, tt.page))
		})
	}
}

func TestPageOffsetsCountIsCeiling(t *testing.T) {
	const h = 37
	for total := 1; total <= 10*h; total++ {
		offs := PageOffsets(total, h)
		want := (total + h - 1) / h
		require.Len(t, offs, want, "total %d", total)
		for k, off := range offs {
			require.Equal(t, k*h, off)
		}
	}
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSlicePagesPadsLastPageWhite(t *testing.T) {
	w := 210
	h := PageHeight(w)
	require.Equal(t, 297, h)

	red := color.RGBA{R: 255, A: 255}
	pages := SlicePages(solidImage(w, h+10, red))
	require.Len(t, pages, 2)

	last := pages[1]
	assert.Equal(t, image.Rect(0, 0, w, h), last.Bounds())
	assert.Equal(t, color.RGBAModel.Convert(red), color.RGBAModel.Convert(last.At(5, 5)))
	assert.Equal(t, color.RGBAModel.Convert(color.White), color.RGBAModel.Convert(last.At(5, 50)))
}

type fakeRenderer struct {
	raster   []byte
	err      error
	printed  string
	rendered string
}

func (f *fakeRenderer) Rasterize(_ context.Context, doc string) ([]byte, error) {
	f.rendered = doc
	return f.raster, f.err
}

func (f *fakeRenderer) Print(_ context.Context, doc string) ([]byte, error) {
	f.printed = doc
	return []byte("%PDF-1.4 fake"), nil
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExportPDF(t *testing.T) {
	w := 100
	fr := &fakeRenderer{raster: pngBytes(t, solidImage(w, PageHeight(w)*2+1, color.Black))}
	dir := t.TempDir()
	e := NewExporter(fr, dir)

	path, err := e.Export(context.Background(), "Quantum  Computing", "# Report\n...", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "research-quantum-computing.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	assert.Contains(t, fr.rendered, "<h1 style=")
	assert.Equal(t, 3, strings.Count(fr.printed, "data:image/png;base64,"))
}

func TestExportMarkdownAndHTMLSkipRenderer(t *testing.T) {
	fr := &fakeRenderer{err: errors.New("must not rasterize")}
	e := NewExporter(fr, t.TempDir())

	md, err := e.Render(context.Background(), "t", "# R", FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "# R", string(md))

	page, err := e.Render(context.Background(), "t", "# R", FormatHTML)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<!DOCTYPE html>")
	assert.Empty(t, fr.rendered)
}

func TestExportStaysInsideDir(t *testing.T) {
	for _, topic := range []string{"TCP/IP networking", "x/../../escaped"} {
		t.Run(topic, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "out")

			path, err := NewExporter(nil, dir).Export(context.Background(), topic, "# r\n", FormatMarkdown)
			require.NoError(t, err)
			assert.Equal(t, dir, filepath.Dir(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "# r\n", string(data))

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "out", entries[0].Name())
		})
	}
}

func TestExportErrors(t *testing.T) {
	e := NewExporter(&fakeRenderer{err: errors.New("no chrome")}, t.TempDir())

	_, err := e.Export(context.Background(), "t", "# R", FormatPDF)
	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, FormatPDF, exportErr.Format)
	assert.Contains(t, err.Error(), "no chrome")

	_, err = e.Export(context.Background(), "t", "  ", FormatMarkdown)
	assert.ErrorIs(t, err, ErrNoReport)

	_, err = NewExporter(&fakeRenderer{raster: []byte("not a png")}, t.TempDir()).
		Render(context.Background(), "t", "# R", FormatPDF)
	require.ErrorAs(t, err, &exportErr)
}
