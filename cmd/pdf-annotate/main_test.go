package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfannotator/internal/models"
	"github.com/Lllllllleong/pdfannotator/internal/pdfdoc"
	"github.com/Lllllllleong/pdfannotator/internal/pdftest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadAnnotations(t *testing.T) {
	list, err := readAnnotations(writeFile(t, "list.json", `[{"text":"a","page":1},{"text":"b","page":2}]`))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	manifest, err := readAnnotations(writeFile(t, "m.json", `{"source":"x.pdf","annotations":[{"text":"c","page":1}]}`))
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "c", manifest[0].Text)

	none, err := readAnnotations("")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = readAnnotations(writeFile(t, "bad.json", `{`))
	assert.Error(t, err)
}

func TestFillCanvas(t *testing.T) {
	doc, err := pdfdoc.Load(pdftest.Build(pdftest.Letter, pdftest.A4), nil)
	require.NoError(t, err)

	annotations := []models.Annotation{
		{Text: "a", PageIndex: 2},
		{Text: "b", PageIndex: 1, CanvasWidthPx: 100, CanvasHeightPx: 200},
	}
	require.NoError(t, fillCanvas(doc, annotations, 1.0))
	assert.Equal(t, 595.0, annotations[0].CanvasWidthPx)
	assert.Equal(t, 842.0, annotations[0].CanvasHeightPx)
	assert.Equal(t, 100.0, annotations[1].CanvasWidthPx)

	assert.Error(t, fillCanvas(doc, []models.Annotation{{PageIndex: 5}}, 1.0))
}

func TestPlacementNeedsFont(t *testing.T) {
	assert.False(t, placementNeedsFont([]models.Annotation{{Text: "Hello"}}))
	assert.True(t, placementNeedsFont([]models.Annotation{{Text: "Hello"}, {Text: "世界"}}))
}
