package pdfdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"golang.org/x/image/font/sfnt"
)

// coverageRune must be mapped by a font before it is accepted for CJK text.
const coverageRune = '中'

// ErrFontRejected marks font data that can never be installed. Only these
// failures are remembered; filesystem errors are retried on the next Install.
var ErrFontRejected = errors.New("font rejected")

// FontRegistry installs font bytes into pdfcpu's user font directory once per
// distinct font and remembers the outcome.
type FontRegistry struct {
	mu        sync.Mutex
	dir       string
	required  rune
	installed map[string]string
	failed    map[string]error
}

// NewFontRegistry uses dir as pdfcpu's user font directory. An empty dir keeps the
// directory pdfcpu configured for itself.
func NewFontRegistry(dir string) *FontRegistry {
	return &FontRegistry{
		dir:       dir,
		required:  coverageRune,
		installed: map[string]string{},
		failed:    map[string]error{},
	}
}

// Install validates data as a TrueType font that covers CJK ideographs and makes it
// available to text stamps. It returns the name to stamp with.
func (r *FontRegistry) Install(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.installed[key]; ok {
		return name, nil
	}
	if err, ok := r.failed[key]; ok {
		return "", err
	}

	name, err := r.install(key, data)
	if err != nil {
		if errors.Is(err, ErrFontRejected) {
			r.failed[key] = err
		}
		return "", err
	}
	r.installed[key] = name
	slog.Info("Font installed for embedding.", "fontName", name, "sizeKB", len(data)/1024)
	return name, nil
}

func (r *FontRegistry) install(key string, data []byte) (string, error) {
	name, err := inspectFont(data, r.required)
	if err != nil {
		return "", err
	}

	if r.dir != "" {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create font dir %s: %w", r.dir, err)
		}
		font.UserFontDir = r.dir
	}
	if font.UserFontDir == "" {
		return "", fmt.Errorf("no user font directory configured")
	}
	// Subsetting reads the installed gob back from the current font dir.
	if _, err := os.Stat(filepath.Join(font.UserFontDir, name+".gob")); err == nil && font.IsUserFont(name) {
		return name, nil
	}

	tmpDir, err := os.MkdirTemp("", "pdfannotator-font-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	fontPath := filepath.Join(tmpDir, key[:16]+".ttf")
	if err := os.WriteFile(fontPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write font file: %w", err)
	}
	if err := api.InstallFonts([]string{fontPath}); err != nil {
		return "", fmt.Errorf("failed to install font: %w", err)
	}
	if err := font.LoadUserFonts(); err != nil {
		return "", fmt.Errorf("failed to reload user fonts: %w", err)
	}
	if !font.IsUserFont(name) {
		return "", fmt.Errorf("%w: pdfcpu could not load %q", ErrFontRejected, name)
	}
	return name, nil
}

// inspectFont parses data and returns its PostScript name, the name pdfcpu
// registers user fonts under.
func inspectFont(data []byte, required rune) (string, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return "", fmt.Errorf("%w: malformed font data: %v", ErrFontRejected, err)
	}
	var buf sfnt.Buffer
	idx, err := f.GlyphIndex(&buf, required)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read cmap: %v", ErrFontRejected, err)
	}
	if idx == 0 {
		return "", fmt.Errorf("%w: font has no glyph for %q", ErrFontRejected, required)
	}
	name, err := f.Name(&buf, sfnt.NameIDPostScript)
	if err != nil || name == "" {
		return "", fmt.Errorf("%w: font has no PostScript name: %v", ErrFontRejected, err)
	}
	return name, nil
}
