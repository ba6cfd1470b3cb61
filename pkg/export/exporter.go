// Package export turns a finished report into a downloadable file: the
// markdown itself, a standalone printable HTML page or an A4 PDF.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoReport is returned when there is nothing to export.
var ErrNoReport = errors.New("no report to export")

// ExportError wraps any failure of an export.
type ExportError struct {
	Format Format
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Renderer rasterizes and prints HTML documents.
type Renderer interface {
	Rasterize(ctx context.Context, doc string) ([]byte, error)
	Print(ctx context.Context, doc string) ([]byte, error)
}

type Exporter struct {
	Renderer Renderer
	Dir      string
	Logger   *slog.Logger
}

func NewExporter(r Renderer, dir string) *Exporter {
	return &Exporter{Renderer: r, Dir: dir, Logger: slog.Default()}
}

// Export writes the report to Dir and returns the file path.
func (e *Exporter) Export(ctx context.Context, topic, report string, f Format) (string, error) {
	data, err := e.Render(ctx, topic, report, f)
	if err != nil {
		return "", err
	}

	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &ExportError{Format: f, Err: err}
	}
	name := Filename(topic, f)
	if filepath.Base(name) != name {
		return "", &ExportError{Format: f, Err: fmt.Errorf("unsafe file name %q", name)}
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &ExportError{Format: f, Err: err}
	}

	e.Logger.Info("Report exported", "format", f, "path", path, "bytes", len(data))
	return path, nil
}

// Render produces the file contents without writing them.
func (e *Exporter) Render(ctx context.Context, topic, report string, f Format) ([]byte, error) {
	if strings.TrimSpace(report) == "" {
		return nil, &ExportError{Format: f, Err: ErrNoReport}
	}

	switch f {
	case FormatMarkdown:
		return []byte(report), nil
	case FormatHTML:
		doc, err := e.document(topic, report)
		if err != nil {
			return nil, &ExportError{Format: f, Err: err}
		}
		return []byte(doc), nil
	case FormatPDF:
		pdf, err := e.pdf(ctx, topic, report)
		if err != nil {
			return nil, &ExportError{Format: f, Err: err}
		}
		return pdf, nil
	}
	return nil, &ExportError{Format: f, Err: fmt.Errorf("unsupported format %q", f)}
}

func (e *Exporter) document(topic, report string) (string, error) {
	fragment, err := RenderHTML(report)
	if err != nil {
		return "", err
	}
	return Document("Research: "+topic, fragment), nil
}

func (e *Exporter) pdf(ctx context.Context, topic, report string) ([]byte, error) {
	if e.Renderer == nil {
		return nil, errors.New("no renderer configured")
	}
	doc, err := e.document(topic, report)
	if err != nil {
		return nil, err
	}

	shot, err := e.Renderer.Rasterize(ctx, doc)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster: %w", err)
	}

	pages := SlicePages(img)
	encoded := make([][]byte, 0, len(pages))
	for _, p := range pages {
		b, err := encodePNG(p)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, b)
	}
	e.Logger.Debug("Report rasterized", "width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "pages", len(pages))

	return e.Renderer.Print(ctx, pagesDocument(encoded))
}
