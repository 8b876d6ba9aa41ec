package convert

import (
	"context"
	"iter"
)

// TextLayerStatus tags the outcome of reading a PDF's embedded text layer.
type TextLayerStatus int

const (
	// TextLayerOK means every page was read.
	TextLayerOK TextLayerStatus = iota
	// TextLayerCorrupt means the PDF structure itself could not be parsed.
	// This is the only outcome that escalates to OCR.
	TextLayerCorrupt
	// TextLayerFailed covers every other failure (I/O, permissions, a
	// failing page callback).
	TextLayerFailed
)

func (s TextLayerStatus) String() string {
	switch s {
	case TextLayerOK:
		return "ok"
	case TextLayerCorrupt:
		return "corrupt"
	default:
		return "failed"
	}
}

// TextLayerResult is returned by TextLayerReader instead of panicking or
// signalling corruption through an error type.
type TextLayerResult struct {
	Status TextLayerStatus
	Pages  int
	Err    error
}

// TextLayerReader extracts the embedded text of a PDF. emit is called once per
// page, in page order.
type TextLayerReader interface {
	ReadTextLayer(ctx context.Context, doc SourceDocument, emit func(page int, text string) error) TextLayerResult
}

// PageImage is one rasterized page, PNG encoded.
type PageImage struct {
	Page int
	DPI  int
	PNG  []byte
}

// Rasterizer renders a PDF page by page. The sequence is lazy: a page is only
// rendered when the consumer asks for it, and iteration stops at the first
// error.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, dpi int) iter.Seq2[PageImage, error]
}

// RecognizedLine is one line found on a page image.
type RecognizedLine struct {
	Text       string
	Confidence float64
}

// Recognizer runs OCR over a page image. Implementations are shared by every
// worker and must be safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, img PageImage, correctOrientation bool) ([]RecognizedLine, error)
}

// ParagraphReader yields the paragraph texts of a DOCX document in order.
type ParagraphReader interface {
	Paragraphs(ctx context.Context, doc SourceDocument) ([]string, error)
}
