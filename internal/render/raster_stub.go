//go:build !fitz

package render

import "image"

// NewRasterizer returns a rasterizer that always fails; build with -tags fitz for MuPDF previews.
func NewRasterizer() Rasterizer {
	return stubRasterizer{}
}

type stubRasterizer struct{}

func (stubRasterizer) Rasterize([]byte, int, float64) (image.Image, error) {
	return nil, ErrRasterUnavailable
}
