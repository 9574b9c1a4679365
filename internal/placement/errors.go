package placement

import "errors"

var (
	// ErrEmbeddingFailure: font bytes were available but the document rejected them.
	ErrEmbeddingFailure = errors.New("font embedding failed, CJK rendering may be degraded")
	// ErrUnsupportedGlyph: CJK text was drawn with a Latin font and characters were substituted.
	ErrUnsupportedGlyph = errors.New("CJK characters were replaced with '?', load a CJK font to render them")
	// ErrInvalidAnnotation rejects annotations that cannot be placed.
	ErrInvalidAnnotation = errors.New("invalid annotation")
)
