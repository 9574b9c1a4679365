package placement

import (
	"errors"
	"fmt"
	"strings"
)

type drawCall struct {
	Page int
	Text string
	Opts DrawOptions
}

// fakeDocument records draws so replays can be compared.
type fakeDocument struct {
	pages    [][2]float64
	embedErr error
	drawErr  func(text string, opts DrawOptions) error
	embedded int
	draws    []drawCall
}

func newFakeDocument(pages ...[2]float64) *fakeDocument {
	return &fakeDocument{pages: pages}
}

func (f *fakeDocument) PageCount() int { return len(f.pages) }

func (f *fakeDocument) PageSize(page int) (float64, float64, error) {
	if page < 1 || page > len(f.pages) {
		return 0, 0, errors.New("no such page")
	}
	return f.pages[page-1][0], f.pages[page-1][1], nil
}

func (f *fakeDocument) EmbedFont(data []byte) (FontHandle, error) {
	if f.embedErr != nil {
		return FontHandle{}, f.embedErr
	}
	f.embedded++
	return FontHandle{Name: fmt.Sprintf("CJK-%d", len(data)), Embedded: true}, nil
}

func (f *fakeDocument) StandardFont(bold bool) FontHandle {
	if bold {
		return FontHandle{Name: "Helvetica-Bold"}
	}
	return FontHandle{Name: "Helvetica"}
}

func (f *fakeDocument) DrawText(page int, text string, opts DrawOptions) error {
	if f.drawErr != nil {
		if err := f.drawErr(text, opts); err != nil {
			return err
		}
	}
	f.draws = append(f.draws, drawCall{Page: page, Text: text, Opts: opts})
	return nil
}

func (f *fakeDocument) serialize() string {
	var b strings.Builder
	for _, d := range f.draws {
		fmt.Fprintf(&b, "%d|%s|%.6f|%.6f|%v|%v|%s\n", d.Page, d.Text, d.Opts.At.X, d.Opts.At.Y, d.Opts.Size, d.Opts.Color.Hex(), d.Opts.Font.Name)
	}
	return b.String()
}
