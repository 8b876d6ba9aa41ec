package convert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Extractor is the per-document extraction policy. PDFs are read from their
// text layer and only escalate to OCR when the structure is corrupt; DOCX
// files are read paragraph by paragraph.
type Extractor struct {
	textLayer  TextLayerReader
	paragraphs ParagraphReader
	ocr        *OCRExtractor
	logger     *slog.Logger
}

func NewExtractor(textLayer TextLayerReader, paragraphs ParagraphReader, ocr *OCRExtractor, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		textLayer:  textLayer,
		paragraphs: paragraphs,
		ocr:        ocr,
		logger:     logger,
	}
}

// Extract writes the text of doc to outputPath, overwriting it.
func (e *Extractor) Extract(ctx context.Context, doc SourceDocument, outputPath string) ExtractionResult {
	switch doc.Kind {
	case KindPDF:
		return e.extractPDF(ctx, doc, outputPath)
	case KindDOCX:
		return e.extractDOCX(ctx, doc, outputPath)
	}
	return failed(doc, outputPath, "dispatch", fmt.Errorf("%q: %w", doc.Kind, ErrUnsupportedKind))
}

func (e *Extractor) extractPDF(ctx context.Context, doc SourceDocument, outputPath string) ExtractionResult {
	logCtx := e.logger.With("path", doc.Path, "output", outputPath)
	logCtx.Info("Converting PDF.")

	out, err := os.Create(outputPath)
	if err != nil {
		logCtx.Error("Error processing PDF.", "error", err)
		return failed(doc, outputPath, "create output", err)
	}
	w := bufio.NewWriter(out)
	layer := e.textLayer.ReadTextLayer(ctx, doc, func(_ int, text string) error {
		if _, err := w.WriteString(text); err != nil {
			return err
		}
		return w.WriteByte('\n')
	})
	writeErr := errors.Join(w.Flush(), out.Close())

	switch layer.Status {
	case TextLayerCorrupt:
		if e.ocr == nil {
			logCtx.Error("PDF structure unreadable and no OCR configured.", "error", layer.Err)
			return failed(doc, outputPath, "corrupt structure", layer.Err)
		}
		logCtx.Warn("PDF structure unreadable, switching to OCR.", "error", layer.Err)
		// The OCR pass truncates outputPath, discarding the partial text layer.
		pages, ocrErr := e.ocr.Extract(ctx, doc.Path, outputPath)
		return ExtractionResult{
			Document:   doc,
			OutputPath: outputPath,
			Status:     StatusSucceeded,
			Method:     MethodOCR,
			Pages:      pages,
			OCRErr:     ocrErr,
		}
	case TextLayerFailed:
		logCtx.Error("Error processing PDF.", "error", layer.Err)
		return failed(doc, outputPath, "read text layer", layer.Err)
	}
	if writeErr != nil {
		logCtx.Error("Error writing PDF text.", "error", writeErr)
		return failed(doc, outputPath, "write output", writeErr)
	}
	return ExtractionResult{
		Document:   doc,
		OutputPath: outputPath,
		Status:     StatusSucceeded,
		Method:     MethodDirect,
		Pages:      layer.Pages,
	}
}

func (e *Extractor) extractDOCX(ctx context.Context, doc SourceDocument, outputPath string) ExtractionResult {
	logCtx := e.logger.With("path", doc.Path, "output", outputPath)
	logCtx.Info("Converting DOCX.")

	paragraphs, err := e.paragraphs.Paragraphs(ctx, doc)
	if err != nil {
		logCtx.Error("Error processing DOCX.", "error", err)
		return failed(doc, outputPath, "read docx", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		logCtx.Error("Error processing DOCX.", "error", err)
		return failed(doc, outputPath, "create output", err)
	}
	w := bufio.NewWriter(out)
	for _, p := range paragraphs {
		w.WriteString(p)
		w.WriteByte('\n')
	}
	if err := errors.Join(w.Flush(), out.Close()); err != nil {
		logCtx.Error("Error writing DOCX text.", "error", err)
		return failed(doc, outputPath, "write output", err)
	}
	return ExtractionResult{
		Document:   doc,
		OutputPath: outputPath,
		Status:     StatusSucceeded,
		Method:     MethodDirect,
	}
}
