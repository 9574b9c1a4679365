package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfannotator/internal/models"
	"github.com/Lllllllleong/pdfannotator/internal/pdfdoc"
	"github.com/Lllllllleong/pdfannotator/internal/pdftest"
	"github.com/Lllllllleong/pdfannotator/internal/placement"
	"github.com/Lllllllleong/pdfannotator/internal/render"
)

// fakeDoc treats its source bytes as a page count and serializes as source plus draws.
type fakeDoc struct {
	source []byte
	pages  int
	draws  []string
}

func (f *fakeDoc) PageCount() int { return f.pages }

func (f *fakeDoc) PageSize(page int) (float64, float64, error) {
	if page < 1 || page > f.pages {
		return 0, 0, errors.New("no such page")
	}
	return 612, 792, nil
}

func (f *fakeDoc) EmbedFont([]byte) (placement.FontHandle, error) {
	return placement.FontHandle{Name: "NotoSansTC", Embedded: true}, nil
}

func (f *fakeDoc) StandardFont(bold bool) placement.FontHandle {
	if bold {
		return placement.FontHandle{Name: "Helvetica-Bold"}
	}
	return placement.FontHandle{Name: "Helvetica"}
}

func (f *fakeDoc) DrawText(page int, text string, opts placement.DrawOptions) error {
	f.draws = append(f.draws, fmt.Sprintf("%d|%s|%.2f|%.2f|%s", page, text, opts.At.X, opts.At.Y, opts.Font.Name))
	return nil
}

func (f *fakeDoc) Save() ([]byte, error) {
	if len(f.draws) == 0 {
		return f.source, nil
	}
	return []byte(string(f.source) + "\n" + strings.Join(f.draws, "\n")), nil
}

var errNotPDF = errors.New("not a pdf")

type fakeOpener struct {
	opened []*fakeDoc
}

func (o *fakeOpener) open(data []byte) (Document, error) {
	var n int
	if _, err := fmt.Sscanf(string(data), "pages=%d", &n); err != nil || n < 1 {
		return nil, errNotPDF
	}
	doc := &fakeDoc{source: data, pages: n}
	o.opened = append(o.opened, doc)
	return doc, nil
}

var fixedNow = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

func newTestSession(t *testing.T, fontAsset []byte) (*Session, *fakeOpener) {
	t.Helper()
	o := &fakeOpener{}
	s := New("test", Options{Open: o.open, FontAsset: fontAsset, Now: func() time.Time { return fixedNow }})
	return s, o
}

func black(size float64) models.Style {
	return models.Style{FontSizePt: size, ColorHex: "#000000"}
}

func TestLoadThreePageDocument(t *testing.T) {
	s, _ := newTestSession(t, nil)

	resp, err := s.OnDocumentLoaded("report.pdf", []byte("pages=3"))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalPages)
	require.Len(t, resp.Pages, 3)
	assert.Equal(t, 918.0, resp.Pages[0].CanvasWidthPx)
	assert.Equal(t, 1188.0, resp.Pages[0].CanvasHeightPx)

	st := s.Status()
	assert.Equal(t, 1, st.CurrentPage)
	assert.False(t, st.CanPrev)
	assert.True(t, st.CanNext)
	assert.Empty(t, st.Annotations)

	assert.Equal(t, 2, s.NextPage())
	assert.Equal(t, 3, s.NextPage())
	assert.Equal(t, 3, s.NextPage())
	st = s.Status()
	assert.True(t, st.CanPrev)
	assert.False(t, st.CanNext)

	assert.Equal(t, 2, s.PrevPage())
	require.NoError(t, s.JumpToPage(1))
	assert.ErrorIs(t, s.JumpToPage(4), ErrPageOutOfRange)
	assert.Equal(t, 1, s.Status().CurrentPage)
}

func TestLoadFailureKeepsState(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=2"))
	require.NoError(t, err)
	require.NoError(t, s.OnClickPlaceAnnotation(1, 10, 10, black(12)))
	require.NoError(t, s.SetDraft("keep me"))
	_, err = s.OnCommitAnnotation()
	require.NoError(t, err)
	s.Status()

	resp, err := s.OnDocumentLoaded("b.pdf", []byte("garbage"))
	assert.ErrorIs(t, err, ErrDocumentLoad)
	require.Len(t, resp.Notices, 1)
	assert.Equal(t, LevelError, resp.Notices[0].Level)

	st := s.Status()
	assert.Equal(t, "a.pdf", st.Filename)
	assert.Equal(t, 2, st.TotalPages)
	assert.Len(t, st.Annotations, 1)
}

func TestLoadClearsAnnotations(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=2"))
	require.NoError(t, err)
	require.NoError(t, s.OnClickPlaceAnnotation(2, 10, 10, black(12)))
	require.NoError(t, s.SetDraft("old"))
	s.NextPage()

	_, err = s.OnDocumentLoaded("b.pdf", []byte("pages=5"))
	require.NoError(t, err)
	st := s.Status()
	assert.Empty(t, st.Annotations)
	assert.False(t, st.Editing)
	assert.Equal(t, 1, st.CurrentPage)
	assert.Equal(t, 5, st.TotalPages)
}

func TestCommitRecordsAnnotation(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=3"))
	require.NoError(t, err)

	require.NoError(t, s.OnClickPlaceAnnotation(2, 100, 50, black(16)))
	require.NoError(t, s.SetDraft("  Hello "))
	a, err := s.OnCommitAnnotation()
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, "Hello", a.Text)
	assert.Equal(t, "Hello", a.DrawnText)
	assert.Equal(t, 2, a.PageIndex)
	assert.Equal(t, 918.0, a.CanvasWidthPx)
	assert.Equal(t, models.FontSystemFallback, a.ResolvedFontFamily)

	st := s.Status()
	require.Len(t, st.Annotations, 1)
	assert.Equal(t, 0, st.PageAnnotations)
	s.NextPage()
	assert.Equal(t, 1, s.Status().PageAnnotations)
}

func TestCommitEmptyDraftIsDiscarded(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)

	require.NoError(t, s.OnClickPlaceAnnotation(1, 5, 5, black(12)))
	require.NoError(t, s.SetDraft("   \n\t"))
	a, err := s.OnCommitAnnotation()
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, s.Status().Annotations)

	_, err = s.OnCommitAnnotation()
	assert.ErrorIs(t, err, ErrNoEdit)
	assert.ErrorIs(t, s.SetDraft("x"), ErrNoEdit)
}

func TestClickCommitsOpenEdit(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)

	require.NoError(t, s.OnClickPlaceAnnotation(1, 5, 5, black(12)))
	require.NoError(t, s.SetDraft("first"))
	require.NoError(t, s.OnClickPlaceAnnotation(1, 50, 50, black(12)))

	st := s.Status()
	require.Len(t, st.Annotations, 1)
	assert.Equal(t, "first", st.Annotations[0].Text)
	assert.True(t, st.Editing)
}

func TestClickValidation(t *testing.T) {
	s, _ := newTestSession(t, nil)
	assert.ErrorIs(t, s.OnClickPlaceAnnotation(1, 5, 5, black(12)), ErrNoDocument)

	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=2"))
	require.NoError(t, err)
	assert.ErrorIs(t, s.OnClickPlaceAnnotation(3, 5, 5, black(12)), ErrPageOutOfRange)
	assert.ErrorIs(t, s.OnClickPlaceAnnotation(1, 919, 5, black(12)), ErrOutsidePage)
	assert.ErrorIs(t, s.OnClickPlaceAnnotation(1, 5, -1, black(12)), ErrOutsidePage)
	assert.ErrorIs(t, s.OnClickPlaceAnnotation(1, 5, 5, black(0)), placement.ErrInvalidAnnotation)
	assert.False(t, s.Status().Editing)
}

func TestCJKWithoutFontIsSubstituted(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)
	s.Status()

	require.NoError(t, s.OnClickPlaceAnnotation(1, 10, 10, black(14)))
	require.NoError(t, s.SetDraft("你好"))
	a, err := s.OnCommitAnnotation()
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "你好", a.Text)
	assert.Equal(t, "??", a.DrawnText)

	var levels []string
	for _, n := range s.Status().Notices {
		levels = append(levels, n.Level)
	}
	assert.Contains(t, levels, LevelWarning)
}

func TestCJKWithFontIsEmbedded(t *testing.T) {
	s, _ := newTestSession(t, bytes.Repeat([]byte{1}, 64))
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)

	require.NoError(t, s.OnClickPlaceAnnotation(1, 10, 10, black(14)))
	require.NoError(t, s.SetDraft("你好"))
	a, err := s.OnCommitAnnotation()
	require.NoError(t, err)
	assert.Equal(t, "你好", a.DrawnText)
	assert.Equal(t, models.FontEmbeddedCJK, a.ResolvedFontFamily)
}

func TestZoom(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)

	assert.Equal(t, 1.7, s.ZoomIn())
	assert.Equal(t, 1040.0, s.Status().Pages[0].CanvasWidthPx)
	for range 20 {
		s.ZoomIn()
	}
	assert.Equal(t, render.MaxScale, s.Status().Zoom)
	for range 20 {
		s.ZoomOut()
	}
	assert.Equal(t, render.MinScale, s.Status().Zoom)
	assert.Equal(t, render.DefaultScale, s.ResetZoom())
}

func TestAnnotationKeepsCanvasAcrossZoom(t *testing.T) {
	s, o := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=3"))
	require.NoError(t, err)

	require.NoError(t, s.OnClickPlaceAnnotation(2, 100, 50, black(16)))
	require.NoError(t, s.SetDraft("Hello"))
	s.ZoomIn()
	s.ZoomIn()

	out, name, err := s.OnExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "edited_2024-03-09.pdf", name)

	require.Len(t, o.opened, 2)
	fresh := o.opened[1]
	require.Len(t, fresh.draws, 1)
	// (100, 50) on a 918x1188 canvas is (66.67, 758.67) in points; the baseline sits 16pt lower.
	assert.Equal(t, "2|Hello|66.67|742.67|Helvetica", fresh.draws[0])
	assert.Contains(t, string(out), "Hello")
	assert.Empty(t, o.opened[0].draws)
}

func TestExportWithoutAnnotationsReturnsSource(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, _, err := s.OnExport(context.Background())
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = s.OnDocumentLoaded("a.pdf", []byte("pages=2"))
	require.NoError(t, err)
	out, _, err := s.OnExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("pages=2"), out)
}

func TestExportIsRepeatable(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=2"))
	require.NoError(t, err)
	require.NoError(t, s.OnClickPlaceAnnotation(1, 10, 10, black(12)))
	require.NoError(t, s.SetDraft("again"))

	first, _, err := s.OnExport(context.Background())
	require.NoError(t, err)
	second, _, err := s.OnExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, s.Status().Annotations, 1)
}

func TestExportCancelled(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = s.OnExport(ctx)
	assert.ErrorIs(t, err, ErrExport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoticesExpire(t *testing.T) {
	now := fixedNow
	o := &fakeOpener{}
	s := New("test", Options{Open: o.open, Now: func() time.Time { return now }})
	s.notify(LevelInfo, "hello")

	now = now.Add(NoticeTTL)
	assert.Empty(t, s.Status().Notices)

	s.notify(LevelInfo, "again")
	st := s.Status()
	require.Len(t, st.Notices, 1)
	assert.Equal(t, "again", st.Notices[0].Message)
	assert.Empty(t, s.Status().Notices)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "edited_2025-12-31.pdf", ExportFilename(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))
}

func TestExportFilenameUsesUTCDate(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	lateEvening := time.Date(2025, 1, 1, 7, 30, 0, 0, tokyo)
	assert.Equal(t, "edited_2024-12-31.pdf", ExportFilename(lateEvening))

	o := &fakeOpener{}
	s := New("tz", Options{Open: o.open, Now: func() time.Time { return lateEvening }})
	_, err := s.OnDocumentLoaded("a.pdf", []byte("pages=1"))
	require.NoError(t, err)
	_, name, err := s.OnExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "edited_2024-12-31.pdf", name)
}

func TestPDFOpenerRoundTrip(t *testing.T) {
	src := pdftest.Build(pdftest.Letter, pdftest.Letter, pdftest.Letter)
	s := New("pdf", Options{Open: PDFOpener(pdfdoc.NewFontRegistry(t.TempDir()))})

	resp, err := s.OnDocumentLoaded("three.pdf", src)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalPages)

	out, _, err := s.OnExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, src, out)

	require.NoError(t, s.OnClickPlaceAnnotation(2, 100, 50, black(16)))
	require.NoError(t, s.SetDraft("Hello"))
	out, _, err = s.OnExport(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, src, out)

	reloaded, err := pdfdoc.Load(out, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.PageCount())
}

func TestPDFOpenerExportIsByteIdentical(t *testing.T) {
	src := pdftest.Build(pdftest.Letter, pdftest.Letter)
	s := New("pdf", Options{Open: PDFOpener(pdfdoc.NewFontRegistry(t.TempDir()))})
	_, err := s.OnDocumentLoaded("two.pdf", src)
	require.NoError(t, err)

	require.NoError(t, s.OnClickPlaceAnnotation(1, 100, 50, black(16)))
	require.NoError(t, s.SetDraft("100% %p"))
	require.NoError(t, s.OnClickPlaceAnnotation(2, 300, 600, black(12)))
	require.NoError(t, s.SetDraft("Second page"))

	first, _, err := s.OnExport(context.Background())
	require.NoError(t, err)
	second, _, err := s.OnExport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, bytes.Contains(first, []byte("(100% %p) Tj")))
}
