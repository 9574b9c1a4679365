//go:build fitz

package render

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// pointsPerInch maps zoom scale 1.0 to 72 dpi, one pixel per point.
const pointsPerInch = 72

// NewRasterizer returns the MuPDF-backed rasterizer.
func NewRasterizer() Rasterizer {
	return fitzRasterizer{}
}

type fitzRasterizer struct{}

func (fitzRasterizer) Rasterize(pdf []byte, page int, scale float64) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for rendering: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d outside 1..%d", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page-1, pointsPerInch*ClampScale(scale))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}
