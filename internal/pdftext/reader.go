// Package pdftext reads the embedded text layer of PDF files.
package pdftext

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/Lllllllleong/doctextflow/internal/convert"
)

// Reader implements convert.TextLayerReader on top of ledongthuc/pdf.
//
// Anything that goes wrong while the parser walks the document structure
// (bad header, broken xref, undecodable content streams, parser panics) is
// reported as TextLayerCorrupt. Failing to read the file or a failing emit
// callback is TextLayerFailed.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadTextLayer(ctx context.Context, doc convert.SourceDocument, emit func(page int, text string) error) convert.TextLayerResult {
	data, err := doc.Content()
	if err != nil {
		return convert.TextLayerResult{Status: convert.TextLayerFailed, Err: fmt.Errorf("read %s: %w", doc.Path, err)}
	}
	return readPages(ctx, data, emit)
}

func readPages(ctx context.Context, data []byte, emit func(page int, text string) error) (res convert.TextLayerResult) {
	defer func() {
		if p := recover(); p != nil {
			res = convert.TextLayerResult{Status: convert.TextLayerCorrupt, Pages: res.Pages, Err: fmt.Errorf("pdf parser panic: %v", p)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return convert.TextLayerResult{Status: convert.TextLayerCorrupt, Err: fmt.Errorf("open pdf: %w", err)}
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return convert.TextLayerResult{Status: convert.TextLayerFailed, Pages: res.Pages, Err: err}
		}
		text, perr := pageText(reader, i)
		if perr != nil {
			return convert.TextLayerResult{Status: convert.TextLayerCorrupt, Pages: res.Pages, Err: fmt.Errorf("page %d: %w", i, perr)}
		}
		if err := emit(i, text); err != nil {
			return convert.TextLayerResult{Status: convert.TextLayerFailed, Pages: res.Pages, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		res.Pages++
	}
	res.Status = convert.TextLayerOK
	return res
}

func pageText(reader *pdf.Reader, i int) (string, error) {
	page := reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
