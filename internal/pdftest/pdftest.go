// Package pdftest builds small PDFs for tests.
package pdftest

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Page is the MediaBox size of one generated page, in points.
type Page struct {
	Width, Height float64
}

var (
	Letter = Page{Width: 612, Height: 792}
	A4     = Page{Width: 595, Height: 842}
)

// Build returns a PDF with one blank page per entry. It panics if pdfcpu
// cannot produce the file.
func Build(pages ...Page) []byte {
	if len(pages) == 0 {
		panic("pdftest: at least one page is required")
	}

	conf := model.NewDefaultConfiguration()
	ctx, err := pdfcpu.CreateContextWithXRefTable(conf, &types.Dim{Width: pages[0].Width, Height: pages[0].Height})
	if err != nil {
		panic(err)
	}

	pagesIndRef, err := ctx.Pages()
	if err != nil {
		panic(err)
	}
	pagesDict, err := ctx.DereferenceDict(*pagesIndRef)
	if err != nil {
		panic(err)
	}

	for _, p := range pages {
		indRef, err := ctx.EmptyPage(pagesIndRef, types.RectForDim(p.Width, p.Height))
		if err != nil {
			panic(err)
		}
		if err := model.AppendPageTree(indRef, 1, pagesDict); err != nil {
			panic(err)
		}
		ctx.PageCount++
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
