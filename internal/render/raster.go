package render

import (
	"errors"
	"image"
)

// ErrRasterUnavailable is returned by builds without a raster engine.
var ErrRasterUnavailable = errors.New("page previews require building with -tags fitz")

// Rasterizer draws a page (1-based) of a PDF at a zoom scale.
type Rasterizer interface {
	Rasterize(pdf []byte, page int, scale float64) (image.Image, error)
}
