package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Viewport width in CSS pixels of a 210mm page at 96dpi.
const viewportWidth = 794

// RodRenderer drives a headless Chrome. Each call launches its own
// browser and tears it down before returning.
type RodRenderer struct {
	// Bin is the browser executable; empty lets the launcher find or
	// download one.
	Bin    string
	Scale  float64
	Logger *slog.Logger
}

func NewRodRenderer(bin string) *RodRenderer {
	return &RodRenderer{Bin: bin, Scale: 2, Logger: slog.Default()}
}

func (r *RodRenderer) withPage(ctx context.Context, doc string, fn func(*rod.Page) error) error {
	l := launcher.New().Headless(true)
	if r.Bin != "" {
		l = l.Bin(r.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			r.Logger.Debug("Failed to close browser", "error", err)
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	scale := r.Scale
	if scale <= 0 {
		scale = 1
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            PageHeight(viewportWidth),
		DeviceScaleFactor: scale,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetDocumentContent(doc); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for document: %w", err)
	}
	return fn(page)
}

// Rasterize returns a full-page PNG of doc.
func (r *RodRenderer) Rasterize(ctx context.Context, doc string) ([]byte, error) {
	var shot []byte
	err := r.withPage(ctx, doc, func(page *rod.Page) error {
		var err error
		shot, err = page.Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		return nil
	})
	return shot, err
}

func f64(v float64) *float64 { return &v }

// Print renders doc to an A4 PDF without margins.
func (r *RodRenderer) Print(ctx context.Context, doc string) ([]byte, error) {
	var pdf []byte
	err := r.withPage(ctx, doc, func(page *rod.Page) error {
		stream, err := page.PDF(&proto.PagePrintToPDF{
			PrintBackground:   true,
			PreferCSSPageSize: true,
			PaperWidth:        f64(pageWidthMM / 25.4),
			PaperHeight:       f64(pageHeightMM / 25.4),
			MarginTop:         f64(0),
			MarginBottom:      f64(0),
			MarginLeft:        f64(0),
			MarginRight:       f64(0),
		})
		if err != nil {
			return fmt.Errorf("print pdf: %w", err)
		}
		pdf, err = io.ReadAll(stream)
		if err != nil {
			return fmt.Errorf("read pdf: %w", err)
		}
		return nil
	})
	return pdf, err
}
