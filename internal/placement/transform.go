// Package placement turns clicks on a rendered page into annotations and replays
// recorded annotations into a document model.
package placement

import (
	"github.com/golang/geo/r2"

	"github.com/Lllllllleong/pdfannotator/internal/models"
)

// ToDocumentSpace maps canvas pixels (origin top-left) to PDF points (origin bottom-left).
// The canvas size in g must be positive.
func ToDocumentSpace(pixelX, pixelY float64, g models.PageGeometry) r2.Point {
	return r2.Point{
		X: pixelX / g.CanvasWidthPx * g.DocumentWidthPt,
		Y: (1 - pixelY/g.CanvasHeightPx) * g.DocumentHeightPt,
	}
}

// ToPixelSpace is the inverse of ToDocumentSpace.
func ToPixelSpace(p r2.Point, g models.PageGeometry) (pixelX, pixelY float64) {
	return p.X / g.DocumentWidthPt * g.CanvasWidthPx, (1 - p.Y/g.DocumentHeightPt) * g.CanvasHeightPx
}

// Baseline moves a click point down by one font size so the glyphs' top edge,
// not their baseline, sits at the click.
func Baseline(p r2.Point, fontSizePt float64) r2.Point {
	return r2.Point{X: p.X, Y: p.Y - fontSizePt}
}
