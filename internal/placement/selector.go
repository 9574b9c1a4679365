package placement

import (
	"fmt"

	"github.com/Lllllllleong/pdfannotator/internal/models"
)

// FontHandle identifies a font usable by a Document.
type FontHandle struct {
	Name     string
	Embedded bool
}

// Embedder is the part of a document model that provides fonts.
type Embedder interface {
	EmbedFont(data []byte) (FontHandle, error)
	StandardFont(bold bool) FontHandle
}

// Outcome names the row of the font decision table that produced a Selection.
type Outcome string

const (
	OutcomeLatin       Outcome = "latin"
	OutcomeEmbeddedCJK Outcome = "embedded-cjk"
	OutcomeSubstituted Outcome = "substituted"
)

// Selection is the font and text to draw for one annotation.
// Warnings wrap ErrEmbeddingFailure or ErrUnsupportedGlyph.
type Selection struct {
	Outcome  Outcome
	Font     FontHandle
	Family   models.FontFamily
	Text     string
	Warnings []error
}

type selectState struct {
	text     string
	asset    []byte
	bold     bool
	embedder Embedder
	warnings []error
}

type fontRule func(st *selectState) (Selection, bool)

// fontDecisionTable is evaluated top to bottom; the first rule that applies wins.
var fontDecisionTable = []fontRule{
	selectLatinForPlainText,
	selectEmbeddedCJK,
	selectSubstitutedFallback,
}

// SelectFont picks the font for text. It is deterministic for the same text, asset
// presence, embedding outcome and weight.
func SelectFont(text string, asset []byte, bold bool, embedder Embedder) Selection {
	st := &selectState{text: text, asset: asset, bold: bold, embedder: embedder}
	for _, rule := range fontDecisionTable {
		if sel, ok := rule(st); ok {
			return sel
		}
	}
	// selectSubstitutedFallback always applies.
	panic("placement: font decision table exhausted")
}

func selectLatinForPlainText(st *selectState) (Selection, bool) {
	if ContainsCJK(st.text) {
		return Selection{}, false
	}
	return Selection{
		Outcome: OutcomeLatin,
		Font:    st.embedder.StandardFont(st.bold),
		Family:  models.FontSystemFallback,
		Text:    st.text,
	}, true
}

func selectEmbeddedCJK(st *selectState) (Selection, bool) {
	if len(st.asset) == 0 {
		return Selection{}, false
	}
	font, err := st.embedder.EmbedFont(st.asset)
	if err != nil {
		st.warnings = append(st.warnings, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err))
		return Selection{}, false
	}
	return Selection{
		Outcome: OutcomeEmbeddedCJK,
		Font:    font,
		Family:  models.FontEmbeddedCJK,
		Text:    st.text,
	}, true
}

func selectSubstitutedFallback(st *selectState) (Selection, bool) {
	return fallbackSelection(st.text, st.bold, st.embedder, st.warnings), true
}

func fallbackSelection(text string, bold bool, embedder Embedder, warnings []error) Selection {
	drawn := SubstituteCJK(text)
	if drawn != text {
		warnings = append(warnings, ErrUnsupportedGlyph)
	}
	return Selection{
		Outcome:  OutcomeSubstituted,
		Font:     embedder.StandardFont(bold),
		Family:   models.FontSystemFallback,
		Text:     drawn,
		Warnings: warnings,
	}
}
