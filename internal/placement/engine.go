package placement

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/golang/geo/r2"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/Lllllllleong/pdfannotator/internal/models"
)

// Document is the mutable document model annotations are drawn into.
// Pages are 1-based.
type Document interface {
	Embedder
	PageCount() int
	PageSize(page int) (widthPt, heightPt float64, err error)
	DrawText(page int, text string, opts DrawOptions) error
}

// DrawOptions places text with its baseline starting at At.
type DrawOptions struct {
	At    r2.Point
	Size  float64
	Color colorful.Color
	Font  FontHandle
}

var hexColor = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// ParseColor reads a 6-digit hex colour with an optional leading '#'.
// Anything else is drawn black.
func ParseColor(hex string) colorful.Color {
	if !hexColor.MatchString(hex) {
		return colorful.Color{}
	}
	c, err := colorful.Hex("#" + strings.TrimPrefix(hex, "#"))
	if err != nil {
		return colorful.Color{}
	}
	return c
}

// Validate checks an annotation against a document with totalPages pages.
func Validate(a models.Annotation, totalPages int) error {
	switch {
	case strings.TrimSpace(a.Text) == "":
		return fmt.Errorf("%w: text is empty", ErrInvalidAnnotation)
	case a.PageIndex < 1 || a.PageIndex > totalPages:
		return fmt.Errorf("%w: page %d is outside 1..%d", ErrInvalidAnnotation, a.PageIndex, totalPages)
	case a.PixelX < 0 || a.PixelY < 0:
		return fmt.Errorf("%w: position (%v, %v) is negative", ErrInvalidAnnotation, a.PixelX, a.PixelY)
	case a.CanvasWidthPx <= 0 || a.CanvasHeightPx <= 0:
		return fmt.Errorf("%w: canvas size %vx%v is not positive", ErrInvalidAnnotation, a.CanvasWidthPx, a.CanvasHeightPx)
	case a.PixelX > a.CanvasWidthPx || a.PixelY > a.CanvasHeightPx:
		return fmt.Errorf("%w: position (%v, %v) is outside the %vx%v canvas", ErrInvalidAnnotation, a.PixelX, a.PixelY, a.CanvasWidthPx, a.CanvasHeightPx)
	case a.FontSizePt <= 0:
		return fmt.Errorf("%w: font size %v is not positive", ErrInvalidAnnotation, a.FontSizePt)
	}
	return nil
}

// Draw selects a font for a and draws it into doc. A draw rejected while using the
// embedded font is retried once with the substituted Latin fallback. The returned
// annotation records the family and text actually drawn.
func Draw(doc Document, a models.Annotation, fontAsset []byte) (models.Annotation, []error, error) {
	if err := Validate(a, doc.PageCount()); err != nil {
		return a, nil, err
	}
	widthPt, heightPt, err := doc.PageSize(a.PageIndex)
	if err != nil {
		return a, nil, fmt.Errorf("page %d: %w", a.PageIndex, err)
	}

	at := Baseline(ToDocumentSpace(a.PixelX, a.PixelY, a.Geometry(widthPt, heightPt)), a.FontSizePt)
	sel := SelectFont(a.Text, fontAsset, a.Bold, doc)
	opts := DrawOptions{At: at, Size: a.FontSizePt, Color: ParseColor(a.ColorHex), Font: sel.Font}

	err = doc.DrawText(a.PageIndex, sel.Text, opts)
	if err != nil && sel.Font.Embedded {
		warnings := append(sel.Warnings, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err))
		sel = fallbackSelection(a.Text, a.Bold, doc, warnings)
		opts.Font = sel.Font
		err = doc.DrawText(a.PageIndex, sel.Text, opts)
	}
	if err != nil {
		return a, sel.Warnings, fmt.Errorf("page %d: failed to draw %q: %w", a.PageIndex, sel.Text, err)
	}

	a.ResolvedFontFamily = sel.Family
	a.DrawnText = sel.Text
	return a, sel.Warnings, nil
}

// ReplayAll draws every annotation into doc in insertion order, selecting fonts afresh
// for each one. It stops at the first annotation that cannot be drawn.
func ReplayAll(doc Document, annotations []models.Annotation, fontAsset []byte) ([]error, error) {
	var warnings []error
	for i, a := range annotations {
		_, w, err := Draw(doc, a, fontAsset)
		warnings = append(warnings, w...)
		if err != nil {
			return warnings, fmt.Errorf("annotation %d: %w", i+1, err)
		}
	}
	return warnings, nil
}

// Engine owns the ordered annotation sequence of one loaded document.
type Engine struct {
	fontAsset   []byte
	annotations []models.Annotation
}

func NewEngine(fontAsset []byte) *Engine {
	return &Engine{fontAsset: fontAsset}
}

// FontAsset returns the font bytes the engine embeds, nil for none.
func (e *Engine) FontAsset() []byte {
	return e.fontAsset
}

// Resolve fills in the font family and drawn text an annotation will get, using
// embedder only to test whether the font asset embeds.
func (e *Engine) Resolve(a models.Annotation, embedder Embedder) (models.Annotation, []error) {
	sel := SelectFont(a.Text, e.fontAsset, a.Bold, embedder)
	a.ResolvedFontFamily = sel.Family
	a.DrawnText = sel.Text
	return a, sel.Warnings
}

// Record appends a. Identical annotations are kept as separate records.
func (e *Engine) Record(a models.Annotation) {
	e.annotations = append(e.annotations, a)
}

// Annotations returns a copy of the sequence in insertion order.
func (e *Engine) Annotations() []models.Annotation {
	out := make([]models.Annotation, len(e.annotations))
	copy(out, e.annotations)
	return out
}

// OnPage returns the annotations of one page, in insertion order.
func (e *Engine) OnPage(page int) []models.Annotation {
	var out []models.Annotation
	for _, a := range e.annotations {
		if a.PageIndex == page {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) Len() int {
	return len(e.annotations)
}

// Reset drops every annotation; used when a new document replaces the old one.
func (e *Engine) Reset() {
	e.annotations = nil
}

// ReplayAll draws the recorded sequence into doc.
func (e *Engine) ReplayAll(doc Document) ([]error, error) {
	return ReplayAll(doc, e.annotations, e.fontAsset)
}
