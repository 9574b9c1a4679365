// Package session holds the state of one annotation session: the loaded document,
// the annotation sequence, zoom, current page and the single open text box.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/pdfannotator/internal/models"
	"github.com/Lllllllleong/pdfannotator/internal/pdfdoc"
	"github.com/Lllllllleong/pdfannotator/internal/placement"
	"github.com/Lllllllleong/pdfannotator/internal/render"
)

var (
	ErrDocumentLoad   = errors.New("document load failed")
	ErrExport         = errors.New("export failed")
	ErrNoDocument     = errors.New("no document loaded")
	ErrNoEdit         = errors.New("no text box is open")
	ErrPageOutOfRange = errors.New("page out of range")
	ErrOutsidePage    = errors.New("position is outside the page")
)

// Document is a document model that can also be serialized.
type Document interface {
	placement.Document
	Save() ([]byte, error)
}

// Opener loads a document model from PDF bytes.
type Opener func(data []byte) (Document, error)

// PDFOpener opens documents with pdfcpu, embedding fonts through fonts.
func PDFOpener(fonts *pdfdoc.FontRegistry) Opener {
	return func(data []byte) (Document, error) {
		return pdfdoc.Load(data, fonts)
	}
}

// Options configures new sessions.
type Options struct {
	Open        Opener
	FontAsset   []byte
	DefaultZoom float64
	Now         func() time.Time
}

// Edit is the open text box. At most one exists per session.
type Edit struct {
	Page     int
	X, Y     float64
	Geometry models.PageGeometry
	Style    models.Style
	Draft    string
}

// Session is safe for concurrent use; every operation runs under the session lock,
// so user actions are applied one at a time.
type Session struct {
	mu          sync.Mutex
	id          string
	open        Opener
	engine      *placement.Engine
	now         func() time.Time
	logger      *slog.Logger
	defaultZoom float64

	filename    string
	source      []byte
	doc         Document
	pages       []models.PageGeometry
	zoom        float64
	currentPage int
	edit        *Edit
	notices     []notice
}

// New creates an empty session.
func New(id string, opts Options) *Session {
	zoom := opts.DefaultZoom
	if zoom <= 0 {
		zoom = render.DefaultScale
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:          id,
		open:        opts.Open,
		engine:      placement.NewEngine(opts.FontAsset),
		now:         now,
		logger:      slog.With("sessionId", id),
		defaultZoom: zoom,
		zoom:        zoom,
	}
}

func (s *Session) ID() string {
	return s.id
}

// OnDocumentLoaded replaces the current document. The annotation sequence is cleared
// in the same step; on failure nothing changes.
func (s *Session) OnDocumentLoaded(filename string, data []byte) (models.DocumentLoadedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.open(data)
	if err != nil {
		s.logger.Error("PDF load failed", "filename", filename, "error", err)
		s.notify(LevelError, "PDF load failed, please check the file format")
		return models.DocumentLoadedResponse{Notices: s.drainNotices()}, fmt.Errorf("%w: %w", ErrDocumentLoad, err)
	}
	pages, err := render.Layout(doc, s.zoom)
	if err != nil {
		s.logger.Error("PDF layout failed", "filename", filename, "error", err)
		s.notify(LevelError, "PDF load failed, please check the file format")
		return models.DocumentLoadedResponse{Notices: s.drainNotices()}, fmt.Errorf("%w: %w", ErrDocumentLoad, err)
	}

	s.filename = filename
	s.source = data
	s.doc = doc
	s.pages = pages
	s.engine.Reset()
	s.edit = nil
	s.currentPage = 1

	s.logger.Info("PDF loaded.", "filename", filename, "totalPages", len(pages))
	s.notify(LevelSuccess, fmt.Sprintf("PDF loaded, %d pages", len(pages)))
	return models.DocumentLoadedResponse{
		Filename:   filename,
		TotalPages: len(pages),
		Pages:      clonePages(pages),
		Notices:    s.drainNotices(),
	}, nil
}

// ZoomIn, ZoomOut and ResetZoom change the scale and recompute page geometry.
func (s *Session) ZoomIn() float64  { return s.changeZoom(render.ScaleStep) }
func (s *Session) ZoomOut() float64 { return s.changeZoom(-render.ScaleStep) }

func (s *Session) ResetZoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setZoom(s.defaultZoom)
}

func (s *Session) changeZoom(delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setZoom(s.zoom + delta)
}

func (s *Session) setZoom(zoom float64) float64 {
	// Round to a tenth so repeated steps do not accumulate float error.
	zoom = render.ClampScale(math.Round(zoom*10) / 10)
	if s.doc != nil {
		pages, err := render.Layout(s.doc, zoom)
		if err != nil {
			s.logger.Error("Re-render failed", "zoom", zoom, "error", err)
			return s.zoom
		}
		s.pages = pages
	}
	s.zoom = zoom
	return s.zoom
}

// NextPage and PrevPage move the current page, staying inside the document.
func (s *Session) NextPage() int { return s.changePage(1) }
func (s *Session) PrevPage() int { return s.changePage(-1) }

func (s *Session) changePage(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next := s.currentPage + delta; next >= 1 && next <= len(s.pages) {
		s.currentPage = next
	}
	return s.currentPage
}

// JumpToPage makes page current.
func (s *Session) JumpToPage(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if page < 1 || page > len(s.pages) {
		s.notify(LevelError, fmt.Sprintf("Enter a page number between 1 and %d", len(s.pages)))
		return fmt.Errorf("%w: %d not in 1..%d", ErrPageOutOfRange, page, len(s.pages))
	}
	s.currentPage = page
	return nil
}

// OnClickPlaceAnnotation opens a text box on page at canvas pixel (x, y). An open text
// box is completed first: committed when it has text, discarded otherwise.
func (s *Session) OnClickPlaceAnnotation(page int, x, y float64, style models.Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNoDocument
	}
	if page < 1 || page > len(s.pages) {
		return fmt.Errorf("%w: %d not in 1..%d", ErrPageOutOfRange, page, len(s.pages))
	}
	geom := s.pages[page-1]
	if x < 0 || y < 0 || x > geom.CanvasWidthPx || y > geom.CanvasHeightPx {
		return fmt.Errorf("%w: (%v, %v) on a %vx%v canvas", ErrOutsidePage, x, y, geom.CanvasWidthPx, geom.CanvasHeightPx)
	}
	if style.FontSizePt <= 0 {
		return fmt.Errorf("%w: font size %v is not positive", placement.ErrInvalidAnnotation, style.FontSizePt)
	}
	if style.ColorHex == "" {
		style.ColorHex = "#000000"
	}

	if s.edit != nil {
		s.completeEdit()
	}
	s.edit = &Edit{Page: page, X: x, Y: y, Geometry: geom, Style: style}
	return nil
}

// SetDraft replaces the text typed into the open text box.
func (s *Session) SetDraft(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.edit == nil {
		return ErrNoEdit
	}
	s.edit.Draft = text
	return nil
}

// OnCommitAnnotation closes the open text box. It returns the recorded annotation,
// or nil when the box was empty and has been discarded.
func (s *Session) OnCommitAnnotation() (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.edit == nil {
		return nil, ErrNoEdit
	}
	return s.completeEdit(), nil
}

func (s *Session) completeEdit() *models.Annotation {
	edit := s.edit
	s.edit = nil

	text := strings.TrimSpace(edit.Draft)
	if text == "" {
		return nil
	}

	a := models.Annotation{
		Text:           text,
		PageIndex:      edit.Page,
		PixelX:         edit.X,
		PixelY:         edit.Y,
		CanvasWidthPx:  edit.Geometry.CanvasWidthPx,
		CanvasHeightPx: edit.Geometry.CanvasHeightPx,
		FontSizePt:     edit.Style.FontSizePt,
		ColorHex:       edit.Style.ColorHex,
		Bold:           edit.Style.Bold,
	}
	if err := placement.Validate(a, len(s.pages)); err != nil {
		s.logger.Error("Annotation rejected", "error", err)
		s.notify(LevelError, "Adding text failed")
		return nil
	}

	a, warnings := s.engine.Resolve(a, s.doc)
	for _, w := range warnings {
		s.logger.Warn("Font fallback", "page", a.PageIndex, "warning", w)
		s.notify(LevelWarning, w.Error())
	}
	s.engine.Record(a)

	s.logger.Info("Annotation recorded.", "page", a.PageIndex, "fontFamily", a.ResolvedFontFamily, "total", s.engine.Len())
	s.notify(LevelSuccess, fmt.Sprintf("Text %q added to page %d", a.Text, a.PageIndex))
	return &a
}

// OnExport completes any open text box, replays every annotation into a freshly
// loaded copy of the document and serializes it. A failed export leaves the session
// as it was.
func (s *Session) OnExport(ctx context.Context) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		s.notify(LevelError, "There is no PDF to export")
		return nil, "", ErrNoDocument
	}
	if s.edit != nil {
		s.completeEdit()
	}

	data, err := s.export(ctx)
	if err != nil {
		s.logger.Error("PDF export failed", "error", err)
		s.notify(LevelError, "PDF export failed")
		return nil, "", fmt.Errorf("%w: %w", ErrExport, err)
	}

	s.logger.Info("PDF exported.", "annotations", s.engine.Len(), "sizeKB", len(data)/1024)
	s.notify(LevelSuccess, "PDF exported")
	return data, ExportFilename(s.now().UTC()), nil
}

func (s *Session) export(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fresh, err := s.open(s.source)
	if err != nil {
		return nil, fmt.Errorf("failed to reload document: %w", err)
	}
	warnings, err := s.engine.ReplayAll(fresh)
	for _, w := range warnings {
		s.logger.Warn("Font fallback during export", "warning", w)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fresh.Save()
}

// ExportFilename names an exported file after the UTC date of t.
func ExportFilename(t time.Time) string {
	return "edited_" + t.UTC().Format("2006-01-02") + ".pdf"
}

// Status snapshots the session and hands over pending notices.
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.SessionStatus{
		SessionID:       s.id,
		Filename:        s.filename,
		TotalPages:      len(s.pages),
		CurrentPage:     s.currentPage,
		Zoom:            s.zoom,
		CanPrev:         s.currentPage > 1,
		CanNext:         s.currentPage < len(s.pages),
		Pages:           clonePages(s.pages),
		Annotations:     s.engine.Annotations(),
		PageAnnotations: len(s.engine.OnPage(s.currentPage)),
		Editing:         s.edit != nil,
		Notices:         s.drainNotices(),
	}
}

// Source returns the loaded PDF bytes and the current zoom, for rasterizing pages.
func (s *Session) Source() ([]byte, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return nil, 0, ErrNoDocument
	}
	return s.source, s.zoom, nil
}

// TotalPages is zero until a document is loaded.
func (s *Session) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func clonePages(pages []models.PageGeometry) []models.PageGeometry {
	out := make([]models.PageGeometry, len(pages))
	copy(out, pages)
	return out
}
