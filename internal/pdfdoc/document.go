// Package pdfdoc implements the mutable document model on top of a pdfcpu context.
package pdfdoc

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	pdffont "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Lllllllleong/pdfannotator/internal/placement"
)

// ErrInvalidPDF is returned by Load for input pdfcpu cannot read.
var ErrInvalidPDF = errors.New("not a valid PDF")

const (
	latinRegular = "Helvetica"
	latinBold    = "Helvetica-Bold"

	fontKeyPrefix = "AnnF"

	// epochDate stands in for a missing or unreadable CreationDate.
	epochDate = "D:19700101000000+00'00'"
)

// Document is one loaded PDF. Draws are applied to an in-memory copy; the
// original bytes are never modified. Saving the same draws on the same source
// always produces the same bytes.
type Document struct {
	conf     *model.Configuration
	original []byte
	current  []byte
	dims     []types.Dim
	fonts    *FontRegistry
	date     string
	wrapped  map[int]bool
	modified bool
}

var _ placement.Document = (*Document)(nil)

// NewConfiguration returns the relaxed pdfcpu configuration used for every document.
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// Load validates data and reads its page sizes.
func Load(data []byte, fonts *FontRegistry) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidPDF)
	}
	conf := NewConfiguration()

	ctx, err := api.ReadAndValidate(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read page sizes: %v", ErrInvalidPDF, err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrInvalidPDF)
	}

	return &Document{
		conf:     conf,
		original: data,
		current:  data,
		dims:     dims,
		fonts:    fonts,
		date:     creationDate(ctx),
		wrapped:  map[int]bool{},
	}, nil
}

func (d *Document) PageCount() int {
	return len(d.dims)
}

func (d *Document) PageSize(page int) (float64, float64, error) {
	if page < 1 || page > len(d.dims) {
		return 0, 0, fmt.Errorf("page %d outside 1..%d", page, len(d.dims))
	}
	dim := d.dims[page-1]
	return dim.Width, dim.Height, nil
}

func (d *Document) StandardFont(bold bool) placement.FontHandle {
	if bold {
		return placement.FontHandle{Name: latinBold}
	}
	return placement.FontHandle{Name: latinRegular}
}

func (d *Document) EmbedFont(data []byte) (placement.FontHandle, error) {
	if d.fonts == nil {
		return placement.FontHandle{}, fmt.Errorf("font embedding is not configured")
	}
	name, err := d.fonts.Install(data)
	if err != nil {
		return placement.FontHandle{}, err
	}
	return placement.FontHandle{Name: name, Embedded: true}, nil
}

// DrawText writes text on a page as a literal string with its baseline starting
// at opts.At, in the page's displayed orientation.
func (d *Document) DrawText(page int, text string, opts placement.DrawOptions) error {
	if page < 1 || page > len(d.dims) {
		return fmt.Errorf("page %d outside 1..%d", page, len(d.dims))
	}
	if opts.Font.Embedded && !font.IsUserFont(opts.Font.Name) {
		return fmt.Errorf("font %q is not installed", opts.Font.Name)
	}

	ctx, err := api.ReadAndValidate(bytes.NewReader(d.current), d.conf)
	if err != nil {
		return fmt.Errorf("failed to read working copy: %w", err)
	}

	subset, content, err := d.writeText(ctx, page, text, opts)
	if err != nil {
		return fmt.Errorf("failed to draw on page %d: %w", page, err)
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page, err)
	}

	d.current = d.pin(ctx, out.Bytes(), subset, content)
	d.wrapped[page] = true
	d.modified = true
	return nil
}

// Save returns the serialized document. An unmodified document is returned as loaded.
func (d *Document) Save() ([]byte, error) {
	if !d.modified {
		return bytes.Clone(d.original), nil
	}
	return bytes.Clone(d.current), nil
}

// Original returns the bytes the document was loaded from.
func (d *Document) Original() []byte {
	return d.original
}

// writeText appends one text object to the page content. It returns the
// subset BaseFont name pdfcpu generated for an embedded font, if any, and the
// content written.
func (d *Document) writeText(ctx *model.Context, page int, text string, opts placement.DrawOptions) (string, []byte, error) {
	pageDict, _, inh, err := ctx.PageDict(page, false)
	if err != nil {
		return "", nil, err
	}
	if pageDict == nil {
		return "", nil, fmt.Errorf("page %d not found", page)
	}

	fonts, err := fontResources(ctx, pageDict, inh)
	if err != nil {
		return "", nil, err
	}
	key := fonts.NewIDForPrefix(fontKeyPrefix, 0)

	// Glyph usage has to be recorded before the subset font dict is built.
	var encoded string
	if opts.Font.Embedded {
		encoded = model.PrepBytes(ctx.XRefTable, text, opts.Font.Name, true, false, false)
	} else {
		encoded = model.PrepBytes(ctx.XRefTable, model.DecodeUTF8ToByte(text), opts.Font.Name, false, false, false)
	}
	fontRef, err := pdffont.EnsureFontDict(ctx.XRefTable, opts.Font.Name, "", "", false, nil)
	if err != nil {
		return "", nil, err
	}
	fonts.Insert(key, *fontRef)

	content := textContent(key, encoded, opts, inh)

	if !d.wrapped[page] {
		if err := wrapContents(ctx, pageDict); err != nil {
			return "", nil, err
		}
	}
	if err := appendContents(ctx, pageDict, content); err != nil {
		return "", nil, err
	}

	if !opts.Font.Embedded {
		return "", content, nil
	}
	return baseFont(ctx, fontRef), content, nil
}

func textContent(key, encoded string, opts placement.DrawOptions, inh *model.InheritedPageAttrs) []byte {
	var b bytes.Buffer
	b.WriteString("q\n")
	if mb := inh.MediaBox; mb != nil {
		if mb.LL.X != 0 || mb.LL.Y != 0 {
			fmt.Fprintf(&b, "1 0 0 1 %.2f %.2f cm\n", mb.LL.X, mb.LL.Y)
		}
		b.WriteString(rotationMatrix(inh.Rotate, mb.Width(), mb.Height()))
	}
	c := opts.Color.Clamped()
	fmt.Fprintf(&b, "BT\n/%s %.2f Tf\n%.3f %.3f %.3f rg\n%.2f %.2f Td\n(%s) Tj\nET\nQ\n",
		key, opts.Size, c.R, c.G, c.B, opts.At.X, opts.At.Y, encoded)
	return b.Bytes()
}

// rotationMatrix maps displayed coordinates onto the unrotated user space of a
// w x h MediaBox shown with /Rotate rot.
func rotationMatrix(rot int, w, h float64) string {
	switch ((rot % 360) + 360) % 360 {
	case 90:
		return fmt.Sprintf("0 1 -1 0 %.2f 0 cm\n", w)
	case 180:
		return fmt.Sprintf("-1 0 0 -1 %.2f %.2f cm\n", w, h)
	case 270:
		return fmt.Sprintf("0 -1 1 0 0 %.2f cm\n", h)
	}
	return ""
}

func fontResources(ctx *model.Context, pageDict types.Dict, inh *model.InheritedPageAttrs) (types.Dict, error) {
	var res types.Dict
	if o, found := pageDict.Find("Resources"); found {
		d, err := ctx.DereferenceDict(o)
		if err != nil {
			return nil, err
		}
		res = d
	}
	if res == nil {
		res = types.NewDict()
		if inh.Resources != nil {
			res = inh.Resources.Clone().(types.Dict)
		}
		pageDict.Update("Resources", res)
	}

	o, found := res.Find("Font")
	if !found {
		fonts := types.NewDict()
		res.Insert("Font", fonts)
		return fonts, nil
	}
	fonts, err := ctx.DereferenceDict(o)
	if err != nil {
		return nil, err
	}
	if fonts == nil {
		fonts = types.NewDict()
		res.Update("Font", fonts)
	}
	return fonts, nil
}

// wrapContents isolates the existing page content in q/Q so its graphics
// state cannot leak into drawn text.
func wrapContents(ctx *model.Context, pageDict types.Dict) error {
	o, found := pageDict.Find("Contents")
	if !found {
		pageDict.Insert("Contents", types.Array{})
		return nil
	}

	var existing types.Array
	obj, err := ctx.Dereference(o)
	if err != nil {
		return err
	}
	switch c := obj.(type) {
	case types.StreamDict:
		existing = types.Array{o}
	case types.Array:
		existing = append(existing, c...)
	case nil:
	default:
		return fmt.Errorf("unexpected page contents %T", obj)
	}

	push, err := newContentStream(ctx, []byte("q\n"))
	if err != nil {
		return err
	}
	pop, err := newContentStream(ctx, []byte("Q\n"))
	if err != nil {
		return err
	}

	a := types.Array{*push}
	a = append(a, existing...)
	a = append(a, *pop)
	pageDict.Update("Contents", a)
	return nil
}

func appendContents(ctx *model.Context, pageDict types.Dict, content []byte) error {
	ref, err := newContentStream(ctx, content)
	if err != nil {
		return err
	}
	o, _ := pageDict.Find("Contents")
	a, ok := o.(types.Array)
	if !ok {
		return fmt.Errorf("page contents were not prepared for drawing")
	}
	pageDict.Update("Contents", append(a, *ref))
	return nil
}

// newContentStream stores content unfiltered.
func newContentStream(ctx *model.Context, content []byte) (*types.IndirectRef, error) {
	sd := types.StreamDict{Dict: types.NewDict(), Content: content}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(sd)
}

func baseFont(ctx *model.Context, ref *types.IndirectRef) string {
	d, err := ctx.DereferenceDict(*ref)
	if err != nil || d == nil {
		return ""
	}
	if n := d.NameEntry("BaseFont"); n != nil {
		return *n
	}
	return ""
}

// pin replaces the values pdfcpu derives from the wall clock on every write:
// the info dict dates, the file ID and the random subset font prefix. Every
// replacement has the width of the original so the xref offsets stay valid.
func (d *Document) pin(ctx *model.Context, out []byte, subset string, content []byte) []byte {
	for _, key := range []string{"CreationDate", "ModDate"} {
		if s := infoString(ctx, key); s != "" && s != d.date && len(s) == len(d.date) {
			out = bytes.ReplaceAll(out, []byte(types.StringLiteral(s).String()), []byte(types.StringLiteral(d.date).String()))
		}
	}

	if prefix, name, ok := strings.Cut(subset, "+"); ok && len(prefix) == 6 {
		stable := subsetPrefix(name, d.current, content)
		out = bytes.ReplaceAll(out, []byte(types.EncodeName(subset)), []byte(types.EncodeName(stable+"+"+name)))
	}

	if len(ctx.ID) == 2 {
		if fid, ok := ctx.ID[1].(types.HexLiteral); ok && len(fid) == 2*md5.Size {
			old := []byte(fid.String())
			blank := []byte(types.HexLiteral(strings.Repeat("0", len(fid))).String())
			sum := md5.Sum(bytes.ReplaceAll(out, old, blank))
			out = bytes.ReplaceAll(out, old, []byte(types.HexLiteral(hex.EncodeToString(sum[:])).String()))
		}
	}
	return out
}

// subsetPrefix derives six capital letters from the font name, the document
// drawn on and the content added to it.
func subsetPrefix(name string, base, content []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(base)
	h.Write(content)
	sum := h.Sum(nil)
	b := make([]byte, 6)
	for i := range b {
		b[i] = 'A' + sum[i]%26
	}
	return string(b)
}

func infoString(ctx *model.Context, key string) string {
	if ctx.Info == nil {
		return ""
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return ""
	}
	o, found := d.Find(key)
	if !found {
		return ""
	}
	if o, err = ctx.Dereference(o); err != nil {
		return ""
	}
	sl, ok := o.(types.StringLiteral)
	if !ok {
		return ""
	}
	return string(sl)
}

// creationDate normalizes the source's CreationDate to UTC so the date written
// on export depends only on the source.
func creationDate(ctx *model.Context) string {
	if ctx.Info == nil {
		return epochDate
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return epochDate
	}
	o, found := d.Find("CreationDate")
	if !found {
		return epochDate
	}
	if o, err = ctx.Dereference(o); err != nil || o == nil {
		return epochDate
	}
	s, err := types.StringOrHexLiteral(o)
	if err != nil || s == nil {
		return epochDate
	}
	t, ok := types.DateTime(*s, true)
	if !ok {
		return epochDate
	}
	if date := types.DateString(t.UTC()); len(date) == len(epochDate) {
		return date
	}
	return epochDate
}
