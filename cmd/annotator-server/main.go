package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/pdfannotator/internal/config"
	"github.com/Lllllllleong/pdfannotator/internal/fonts"
	"github.com/Lllllllleong/pdfannotator/internal/pdfdoc"
	"github.com/Lllllllleong/pdfannotator/internal/render"
	"github.com/Lllllllleong/pdfannotator/internal/server"
	"github.com/Lllllllleong/pdfannotator/internal/session"
)

const functionTarget = "HandleAnnotator"

var (
	handler   http.Handler
	cfg       *config.Config
	fontAsset []byte
	once      sync.Once
	initErr   error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP(functionTarget, handleAnnotator)
}

func main() {
	if err := setup(); err != nil {
		slog.Error("Critical: annotator initialization failed", "error", err)
		os.Exit(1)
	}
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", functionTarget)
	}
	slog.Info("Annotator listening.", "port", cfg.Port)
	if err := funcframework.Start(cfg.Port); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// setup runs once per process, outside any request, so a cancelled first
// request cannot leave every later session without the font.
func setup() error {
	once.Do(func() {
		cfg, initErr = config.Load()
		if initErr != nil {
			return
		}
		fontAsset = resolveFont(context.Background(), cfg)
		handler = server.New(session.NewStore(session.Options{
			Open:        session.PDFOpener(pdfdoc.NewFontRegistry(cfg.FontDir)),
			FontAsset:   fontAsset,
			DefaultZoom: cfg.DefaultZoom,
		}), render.NewRasterizer())
	})
	return initErr
}

// resolveFont runs once per process; sessions share the result.
func resolveFont(ctx context.Context, cfg *config.Config) []byte {
	var objects fonts.ObjectReader
	if usesGCS(cfg) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			slog.Warn("Could not create Storage client, gs:// font candidates will fail.", "error", err)
		} else {
			objects = fonts.GCSReader{Client: client}
		}
	}

	asset, failures := cfg.FontResolver(objects).Resolve(ctx)
	if !asset.Present() {
		slog.Warn("No CJK font available, CJK text will be replaced.", "failures", len(failures))
		return nil
	}
	return asset.Data
}

func usesGCS(cfg *config.Config) bool {
	if strings.HasPrefix(cfg.FontBaseURL, "gs://") {
		return true
	}
	for _, c := range cfg.FontCandidates {
		if strings.HasPrefix(c, "gs://") {
			return true
		}
	}
	return false
}

func handleAnnotator(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("Critical: annotator initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(w, r)
}
