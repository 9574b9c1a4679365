package models

// FontFamily names the font variant an annotation was actually drawn with.
type FontFamily string

const (
	FontEmbeddedCJK    FontFamily = "embedded-cjk"
	FontSystemFallback FontFamily = "system-fallback"
)

// Style is the text box styling chosen in the toolbar when a box is placed.
type Style struct {
	FontSizePt float64 `json:"fontSize" yaml:"fontSize"`
	ColorHex   string  `json:"color" yaml:"color"`
	Bold       bool    `json:"bold" yaml:"bold"`
}

// Annotation is one committed text box. PageIndex is 1-based and PixelX/PixelY are
// relative to the canvas the click was made on, whose size is kept alongside so the
// annotation can be mapped into document space regardless of later zoom changes.
type Annotation struct {
	Text               string     `json:"text"`
	DrawnText          string     `json:"drawnText,omitempty"`
	PageIndex          int        `json:"page"`
	PixelX             float64    `json:"x"`
	PixelY             float64    `json:"y"`
	CanvasWidthPx      float64    `json:"canvasWidth"`
	CanvasHeightPx     float64    `json:"canvasHeight"`
	FontSizePt         float64    `json:"fontSize"`
	ColorHex           string     `json:"color"`
	Bold               bool       `json:"bold"`
	ResolvedFontFamily FontFamily `json:"fontFamily,omitempty"`
}

// PageGeometry relates a rendered canvas to the page it shows.
type PageGeometry struct {
	CanvasWidthPx    float64 `json:"canvasWidth"`
	CanvasHeightPx   float64 `json:"canvasHeight"`
	DocumentWidthPt  float64 `json:"documentWidth"`
	DocumentHeightPt float64 `json:"documentHeight"`
}

// Geometry rebuilds the page geometry an annotation was placed against.
func (a Annotation) Geometry(docWidthPt, docHeightPt float64) PageGeometry {
	return PageGeometry{
		CanvasWidthPx:    a.CanvasWidthPx,
		CanvasHeightPx:   a.CanvasHeightPx,
		DocumentWidthPt:  docWidthPt,
		DocumentHeightPt: docHeightPt,
	}
}
