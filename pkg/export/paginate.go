package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
)

// A4 proportions in millimetres.
const (
	pageWidthMM  = 210
	pageHeightMM = 297
)

// PageHeight returns the pixel height of an A4 page for a raster of the
// given pixel width.
func PageHeight(width int) int {
	if width <= 0 {
		return 0
	}
	return (width*pageHeightMM + pageWidthMM/2) / pageWidthMM
}

// PageOffsets returns the top offset of every page: 0, h, 2h, ... while
// content remains. Empty content still yields a single page.
func PageOffsets(total, pageHeight int) []int {
	if pageHeight <= 0 {
		return nil
	}
	offsets := []int{0}
	for remaining := total - pageHeight; remaining > 0; remaining -= pageHeight {
		offsets = append(offsets, total-remaining)
	}
	return offsets
}

// SlicePages cuts img into A4-proportioned pages. The last page is padded
// with white.
func SlicePages(img image.Image) []image.Image {
	b := img.Bounds()
	h := PageHeight(b.Dx())
	offsets := PageOffsets(b.Dy(), h)

	pages := make([]image.Image, 0, len(offsets))
	for _, off := range offsets {
		page := image.NewRGBA(image.Rect(0, 0, b.Dx(), h))
		draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(page, page.Bounds(), img, image.Pt(b.Min.X, b.Min.Y+off), draw.Src)
		pages = append(pages, page)
	}
	return pages
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}
	return buf.Bytes(), nil
}

// pagesDocument lays out one full-bleed image per A4 page for printing.
func pagesDocument(pages [][]byte) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><style>")
	b.WriteString("@page { size: A4; margin: 0; } html, body { margin: 0; padding: 0; background: #ffffff; }")
	b.WriteString(" img { display: block; width: 210mm; height: 297mm; break-after: page; }")
	b.WriteString(" img:last-child { break-after: auto; }")
	b.WriteString("</style></head><body>")
	for _, p := range pages {
		b.WriteString(`<img src="data:image/png;base64,`)
		b.WriteString(base64.StdEncoding.EncodeToString(p))
		b.WriteString(`">`)
	}
	b.WriteString("</body></html>\n")
	return b.String()
}
