package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdfannotator/internal/config"
	"github.com/Lllllllleong/pdfannotator/internal/fonts"
	"github.com/Lllllllleong/pdfannotator/internal/gcp"
	"github.com/Lllllllleong/pdfannotator/internal/models"
	"github.com/Lllllllleong/pdfannotator/internal/pdfdoc"
	"github.com/Lllllllleong/pdfannotator/internal/placement"
	"github.com/Lllllllleong/pdfannotator/internal/session"
)

// ManifestSuffix marks the objects the batch exporter reacts to.
const ManifestSuffix = ".annotations.json"

type BatchExporterConfig struct {
	ProjectID      string
	ExportBucket   string
	CollectionName string
}

type BatchExporterFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	fonts           *pdfdoc.FontRegistry
	fontAsset       []byte
	config          BatchExporterConfig
	now             func() time.Time
}

type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func NewBatchExporter(ctx context.Context) (*BatchExporterFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.ExportBucket == "" {
		return nil, fmt.Errorf("EXPORT_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	asset, _ := cfg.FontResolver(fonts.GCSReader{Client: storageClient}).Resolve(ctx)
	var fontAsset []byte
	if asset.Present() {
		fontAsset = asset.Data
	}

	f := &BatchExporterFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		fonts:           pdfdoc.NewFontRegistry(cfg.FontDir),
		fontAsset:       fontAsset,
		config: BatchExporterConfig{
			ProjectID:      cfg.ProjectID,
			ExportBucket:   cfg.ExportBucket,
			CollectionName: cfg.FirestoreCollection,
		},
		now: time.Now,
	}
	slog.Info("Batch exporter initialized.", "exportBucket", cfg.ExportBucket, "cjkFont", asset.Present())
	return f, nil
}

func (f *BatchExporterFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !IsManifest(e.Name) {
		logCtx.Info("Object is not an annotation manifest. Skipping.")
		return nil
	}
	logCtx.Info("Processing annotation manifest.")

	manifestBytes, err := gcp.ReadObject(ctx, f.storageClient.Bucket(e.Bucket), e.Name)
	if err != nil {
		logCtx.Error("Failed to download manifest", "error", err)
		return err
	}
	manifestHash := calculateManifestHash(manifestBytes)
	logCtx = logCtx.With("manifestHash", manifestHash)

	manifest, err := parseManifest(manifestBytes)
	if err != nil {
		logCtx.Error("Invalid manifest", "error", err)
		return err
	}
	sourceBucket, sourceObject, err := resolveSource(e.Bucket, manifest.Source)
	if err != nil {
		logCtx.Error("Invalid manifest source", "error", err)
		return err
	}
	logCtx = logCtx.With("sourceObject", sourceObject)

	docRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(manifestHash)

	var sourcePDF []byte
	var alreadyExported bool
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		alreadyExported, err = f.isExported(gctx, docRef)
		return err
	})
	eg.Go(func() error {
		var err error
		sourcePDF, err = gcp.ReadObject(gctx, f.storageClient.Bucket(sourceBucket), sourceObject)
		return err
	})
	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to prepare export", "error", err)
		return err
	}
	if alreadyExported {
		logCtx.Info("Manifest already exported. Skipping.")
		return nil
	}

	record := models.ExportRecord{
		ManifestHash:    manifestHash,
		ManifestObject:  e.Name,
		SourceObject:    fmt.Sprintf("gs://%s/%s", sourceBucket, sourceObject),
		Status:          models.StatusProcessing,
		AnnotationCount: len(manifest.Annotations),
		CreatedAt:       f.now(),
	}
	if _, err := docRef.Set(ctx, record); err != nil {
		logCtx.Error("Failed to create export record", "error", err)
		return fmt.Errorf("failed to create export record: %w", err)
	}

	result, err := StampDocument(sourcePDF, manifest.Annotations, f.fonts, f.fontAsset)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to stamp annotations", err)
	}
	for _, w := range result.Warnings {
		logCtx.Warn("Font fallback", "warning", w)
	}

	objectName := ExportObjectName(e.Name, f.now())
	if err := gcp.UploadWithRetry(ctx, f.storageClient.Bucket(f.config.ExportBucket), objectName, "application/pdf", result.PDF); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to upload exported PDF", err)
	}

	outputURI := fmt.Sprintf("gs://%s/%s", f.config.ExportBucket, objectName)
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusExported},
		{Path: "pageCount", Value: result.PageCount},
		{Path: "outputUri", Value: outputURI},
	}
	if len(result.Warnings) > 0 {
		updates = append(updates, firestore.Update{Path: "warnings", Value: warningStrings(result.Warnings)})
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to update status to EXPORTED", err)
	}

	logCtx.Info("Export complete.", "outputUri", outputURI, "pageCount", result.PageCount)
	return nil
}

func (f *BatchExporterFunction) isExported(ctx context.Context, docRef *firestore.DocumentRef) (bool, error) {
	snap, err := docRef.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	var existing models.ExportRecord
	if err := snap.DataTo(&existing); err != nil {
		return false, fmt.Errorf("failed to decode export record: %w", err)
	}
	return existing.Status == models.StatusExported, nil
}

func (f *BatchExporterFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := gcp.UpdateStatus(ctx, docRef, models.StatusFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// StampResult is the outcome of replaying a manifest into a PDF.
type StampResult struct {
	PDF       []byte
	PageCount int
	Warnings  []error
}

// StampDocument replays annotations into source and serializes the result.
func StampDocument(source []byte, annotations []models.Annotation, registry *pdfdoc.FontRegistry, fontAsset []byte) (StampResult, error) {
	doc, err := pdfdoc.Load(source, registry)
	if err != nil {
		return StampResult{}, err
	}
	warnings, err := placement.ReplayAll(doc, annotations, fontAsset)
	if err != nil {
		return StampResult{Warnings: warnings}, err
	}
	out, err := doc.Save()
	if err != nil {
		return StampResult{Warnings: warnings}, err
	}
	return StampResult{PDF: out, PageCount: doc.PageCount(), Warnings: warnings}, nil
}

// IsManifest reports whether an object name is an annotation manifest.
func IsManifest(name string) bool {
	return strings.HasSuffix(name, ManifestSuffix) && len(path.Base(name)) > len(ManifestSuffix)
}

// ExportObjectName places the export in a folder named after the manifest.
func ExportObjectName(manifestName string, now time.Time) string {
	base := strings.TrimSuffix(path.Base(manifestName), ManifestSuffix)
	return base + "/" + session.ExportFilename(now)
}

func parseManifest(data []byte) (models.Manifest, error) {
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if m.Source == "" {
		return m, fmt.Errorf("manifest has no source")
	}
	return m, nil
}

// resolveSource accepts a gs:// URI or an object name in the manifest's own bucket.
func resolveSource(eventBucket, source string) (string, string, error) {
	if strings.HasPrefix(source, "gs://") {
		return gcp.ParseGSURI(source)
	}
	return eventBucket, strings.TrimPrefix(source, "/"), nil
}

func warningStrings(warnings []error) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.Error()
	}
	return out
}

func calculateManifestHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
