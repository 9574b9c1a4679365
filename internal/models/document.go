package models

import "time"

// ExportRecord tracks one batch export job in Firestore.
// It is keyed by the hash of the manifest that triggered it.
type ExportRecord struct {
	ManifestHash    string    `firestore:"manifestHash,omitempty"`
	ManifestObject  string    `firestore:"manifestObject,omitempty"`
	SourceObject    string    `firestore:"sourceObject,omitempty"`
	Status          string    `firestore:"status,omitempty"`
	ErrorDetails    string    `firestore:"errorDetails,omitempty"`
	PageCount       int       `firestore:"pageCount,omitempty"`
	AnnotationCount int       `firestore:"annotationCount,omitempty"`
	Warnings        []string  `firestore:"warnings,omitempty"`
	OutputURI       string    `firestore:"outputUri,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt,omitempty"`
}

const (
	StatusProcessing = "PROCESSING"
	StatusExported   = "EXPORTED"
	StatusFailed     = "FAILED"
)
