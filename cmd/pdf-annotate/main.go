package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"

	"github.com/Lllllllleong/pdfannotator/internal/config"
	"github.com/Lllllllleong/pdfannotator/internal/models"
	"github.com/Lllllllleong/pdfannotator/internal/pdfdoc"
	"github.com/Lllllllleong/pdfannotator/internal/placement"
	"github.com/Lllllllleong/pdfannotator/internal/render"
	"github.com/Lllllllleong/pdfannotator/internal/session"
)

var args struct {
	Annotations  string   `short:"a" type:"existingfile" help:"JSON manifest or array of annotations. Without it the input is copied unchanged"`
	Font         []string `short:"f" help:"Font candidates tried in order (paths or URLs)"`
	FontBaseURL  string   `name:"font-base-url" help:"Base URL that relative font candidates are resolved against"`
	MinFontBytes int64    `default:"1048576" help:"A font must be larger than this to be accepted"`
	FontDir      string   `type:"path" help:"Directory for installed user fonts"`
	Zoom         float64  `short:"z" default:"1.5" help:"Canvas scale assumed for annotations without a canvas size"`
	Output       string   `short:"o" type:"path" help:"Output PDF. Defaults to edited_YYYY-MM-DD.pdf"`

	Input string `arg:"" name:"input" help:"Path to input PDF" type:"existingfile"`
}

func main() {
	kong.Parse(&args,
		kong.Name("pdf-annotate"),
		kong.Description("Stamp text annotations onto a PDF."),
	)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("pdf-annotate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	source, err := os.ReadFile(args.Input)
	if err != nil {
		return err
	}
	annotations, err := readAnnotations(args.Annotations)
	if err != nil {
		return err
	}

	candidates := args.Font
	if len(candidates) == 0 {
		candidates = config.DefaultFontCandidates
	}
	cfg := &config.Config{
		FontCandidates: candidates,
		FontBaseURL:    args.FontBaseURL,
		MinFontBytes:   args.MinFontBytes,
	}
	var fontAsset []byte
	if placementNeedsFont(annotations) {
		asset, failures := cfg.FontResolver(nil).Resolve(ctx)
		for _, f := range failures {
			slog.Warn("Font candidate rejected", "error", f)
		}
		if asset.Present() {
			fontAsset = asset.Data
		}
	}

	doc, err := pdfdoc.Load(source, pdfdoc.NewFontRegistry(args.FontDir))
	if err != nil {
		return err
	}
	if err := fillCanvas(doc, annotations, args.Zoom); err != nil {
		return err
	}
	warnings, err := placement.ReplayAll(doc, annotations, fontAsset)
	for _, w := range warnings {
		slog.Warn("Font fallback", "warning", w)
	}
	if err != nil {
		return err
	}
	out, err := doc.Save()
	if err != nil {
		return err
	}

	output := args.Output
	if output == "" {
		output = session.ExportFilename(time.Now().UTC())
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return err
	}
	slog.Info("PDF written.", "output", output, "annotations", len(annotations), "pages", doc.PageCount())
	return nil
}

// readAnnotations accepts a manifest object or a bare array.
func readAnnotations(path string) ([]models.Annotation, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []models.Annotation
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m.Annotations, nil
}

func placementNeedsFont(annotations []models.Annotation) bool {
	for _, a := range annotations {
		if placement.ContainsCJK(a.Text) {
			return true
		}
	}
	return false
}

func fillCanvas(doc render.PageSizer, annotations []models.Annotation, zoom float64) error {
	for i := range annotations {
		a := &annotations[i]
		if a.CanvasWidthPx > 0 && a.CanvasHeightPx > 0 {
			continue
		}
		w, h, err := doc.PageSize(a.PageIndex)
		if err != nil {
			return fmt.Errorf("annotation %d: page %d: %w", i+1, a.PageIndex, err)
		}
		g := render.PageGeometry(w, h, zoom)
		a.CanvasWidthPx, a.CanvasHeightPx = g.CanvasWidthPx, g.CanvasHeightPx
	}
	return nil
}
