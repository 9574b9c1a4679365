package placement

import (
	"strings"
	"unicode"
)

// SubstituteGlyph replaces characters a Latin standard font cannot show.
const SubstituteGlyph = '?'

// cjkIdeographs is the CJK Unified Ideographs block, U+4E00..U+9FFF.
var cjkIdeographs = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x4e00, Hi: 0x9fff, Stride: 1}},
}

// IsCJK reports whether r is a CJK unified ideograph.
func IsCJK(r rune) bool {
	return unicode.Is(cjkIdeographs, r)
}

// ContainsCJK reports whether any character of s is a CJK unified ideograph.
func ContainsCJK(s string) bool {
	return strings.IndexFunc(s, IsCJK) >= 0
}

// SubstituteCJK replaces every CJK ideograph with SubstituteGlyph, one for one.
func SubstituteCJK(s string) string {
	return strings.Map(func(r rune) rune {
		if IsCJK(r) {
			return SubstituteGlyph
		}
		return r
	}, s)
}
