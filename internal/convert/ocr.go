package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Lllllllleong/doctextflow/internal/metrics"
)

// OCRExtractor rasterizes a PDF and appends the recognized text of every page
// to the output file as soon as the page is done, so a crash mid-document
// leaves a prefix-valid file behind.
type OCRExtractor struct {
	rasterizer Rasterizer
	recognizer Recognizer
	dpi        int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewOCRExtractor(rasterizer Rasterizer, recognizer Recognizer, dpi int, logger *slog.Logger, m *metrics.Metrics) *OCRExtractor {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRExtractor{
		rasterizer: rasterizer,
		recognizer: recognizer,
		dpi:        dpi,
		logger:     logger,
		metrics:    m,
	}
}

// Extract replaces the content of outputPath with the OCR text of the
// document at path. It returns the number of pages written. A non-nil error
// is always an *OCRError and has already been logged; the file then holds the
// text of the pages before the failing one.
func (o *OCRExtractor) Extract(ctx context.Context, path, outputPath string) (int, error) {
	logCtx := o.logger.With("path", path, "output", outputPath)
	logCtx.Info("Processing with OCR.", "dpi", o.dpi)

	pages, err := o.extract(ctx, path, outputPath)
	if err != nil {
		logCtx.Error("Error processing PDF with OCR.", "error", err, "pagesWritten", pages)
		return pages, err
	}
	logCtx.Info("OCR extraction complete.", "pages", pages)
	return pages, nil
}

func (o *OCRExtractor) extract(ctx context.Context, path, outputPath string) (written int, err error) {
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return 0, &OCRError{Path: path, Err: fmt.Errorf("open output: %w", err)}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &OCRError{Path: path, Page: written, Err: fmt.Errorf("close output: %w", cerr)}
		}
	}()

	for img, rerr := range o.rasterizer.Rasterize(ctx, path, o.dpi) {
		page := written + 1
		if rerr != nil {
			return written, &OCRError{Path: path, Page: page, Err: fmt.Errorf("rasterize: %w", rerr)}
		}
		if cerr := ctx.Err(); cerr != nil {
			return written, &OCRError{Path: path, Page: page, Err: cerr}
		}
		lines, rerr := o.recognizer.Recognize(ctx, img, true)
		if rerr != nil {
			return written, &OCRError{Path: path, Page: page, Err: fmt.Errorf("recognize: %w", rerr)}
		}
		if werr := appendPage(out, lines); werr != nil {
			return written, &OCRError{Path: path, Page: page, Err: werr}
		}
		written++
		o.metrics.AddOCRPage()
	}
	return written, nil
}

// appendPage writes one page's lines and syncs, so the file on disk always
// ends on a page boundary. Pages without recognized lines write nothing.
func appendPage(out *os.File, lines []RecognizedLine) error {
	if len(lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	if _, err := out.WriteString(b.String()); err != nil {
		return fmt.Errorf("append page: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	return nil
}
