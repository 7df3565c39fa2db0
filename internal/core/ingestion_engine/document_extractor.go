package ingestion_engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/logger"
	"github.com/markdave123-py/docvault/internal/models"
)

var (
	_ core.ContentDecoder = (*PDFDecoder)(nil)
	_ core.ContentDecoder = (*DocconvDecoder)(nil)
)

// PDFDecoder reads per-page text and image XObjects with ledongthuc/pdf.
// Page numbers are 1-based.
type PDFDecoder struct{}

func NewPDFDecoder() *PDFDecoder { return &PDFDecoder{} }

// Decode returns every page of the document at path in order. A document that
// cannot be opened or walked yields an error wrapping core.ErrDecode. Text or
// images that fail on a single page are logged and left out of that page.
func (d *PDFDecoder) Decode(ctx context.Context, path string) (pages []models.DecodedPage, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", core.ErrDecode, path, err)
	}
	defer f.Close()

	// The parser panics on some malformed object graphs.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: parse %s: %v", core.ErrDecode, path, rec)
		}
	}()

	n := r.NumPage()
	pages = make([]models.DecodedPage, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dp := models.DecodedPage{PageNumber: i}
		page := r.Page(i)
		if !page.V.IsNull() {
			dp.Text = pageText(page, i)
			dp.Images = pageImages(page, i)
		}
		pages = append(pages, dp)
	}
	logger.Debug("PDFDecoder: %s has %d pages", path, n)
	return pages, nil
}

func pageText(p pdf.Page, pageNumber int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("PDFDecoder: page %d text unreadable: %v", pageNumber, rec)
			text = ""
		}
	}()
	t, err := p.GetPlainText(nil)
	if err != nil {
		logger.Warn("PDFDecoder: page %d text unreadable: %v", pageNumber, err)
		return ""
	}
	return strings.TrimSpace(t)
}

// pageImages returns the page's image XObjects encoded as PNG, in resource
// name order. Images the parser cannot decode (DCT, JBIG2, masks) are skipped.
func pageImages(p pdf.Page, pageNumber int) (out [][]byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("PDFDecoder: page %d resources unreadable: %v", pageNumber, rec)
		}
	}()

	xobjs := p.Resources().Key("XObject")
	if xobjs.Kind() != pdf.Dict {
		return nil
	}
	for _, name := range xobjs.Keys() {
		x := xobjs.Key(name)
		if x.Key("Subtype").Name() != "Image" {
			continue
		}
		raw, err := encodeXObjectImage(x)
		if err != nil {
			logger.Debug("PDFDecoder: page %d image %s skipped: %v", pageNumber, name, err)
			continue
		}
		out = append(out, raw)
	}
	return out
}

// DocconvDecoder extracts text through docconv (pdftotext for PDFs). It yields
// no images. Form feeds in the converted body separate pages; a body without
// any is a single page.
type DocconvDecoder struct{}

func NewDocconvDecoder() *DocconvDecoder { return &DocconvDecoder{} }

func (d *DocconvDecoder) Decode(ctx context.Context, path string) ([]models.DecodedPage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrDecode, path, err)
	}
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: docconv %s: %w", core.ErrDecode, path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return splitPages(res.Body), nil
}

func splitPages(body string) []models.DecodedPage {
	parts := strings.Split(body, "\f")
	// pdftotext terminates the last page with a form feed too.
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]models.DecodedPage, len(parts))
	for i, p := range parts {
		pages[i] = models.DecodedPage{PageNumber: i + 1, Text: strings.TrimSpace(p)}
	}
	return pages
}
