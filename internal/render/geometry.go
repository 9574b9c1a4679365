// Package render derives canvas geometry for pages and, in builds tagged fitz,
// rasterizes pages for preview.
package render

import (
	"fmt"
	"math"

	"github.com/Lllllllleong/pdfannotator/internal/models"
)

const (
	DefaultScale = 1.5
	MinScale     = 0.5
	MaxScale     = 3.0
	ScaleStep    = 0.2
)

// PageSizer exposes page sizes in points; pages are 1-based.
type PageSizer interface {
	PageCount() int
	PageSize(page int) (widthPt, heightPt float64, err error)
}

// ClampScale keeps a zoom scale inside [MinScale, MaxScale].
func ClampScale(scale float64) float64 {
	return math.Max(MinScale, math.Min(MaxScale, scale))
}

// PageGeometry sizes the canvas for one page at scale. Canvas dimensions are whole
// pixels, truncated like a canvas element's width and height.
func PageGeometry(widthPt, heightPt, scale float64) models.PageGeometry {
	return models.PageGeometry{
		CanvasWidthPx:    math.Floor(widthPt * scale),
		CanvasHeightPx:   math.Floor(heightPt * scale),
		DocumentWidthPt:  widthPt,
		DocumentHeightPt: heightPt,
	}
}

// Layout computes the geometry of every page at scale.
func Layout(doc PageSizer, scale float64) ([]models.PageGeometry, error) {
	pages := make([]models.PageGeometry, doc.PageCount())
	for i := range pages {
		w, h, err := doc.PageSize(i + 1)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages[i] = PageGeometry(w, h, scale)
	}
	return pages, nil
}
