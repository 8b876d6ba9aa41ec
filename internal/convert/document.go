// Package convert turns PDF and DOCX documents into normalized plain text,
// escalating to OCR when a PDF's text layer cannot be read and repairing
// outputs that come out suspiciously small.
package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the document format, derived from the file extension.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

var (
	// ErrUnsupportedKind marks files that are neither PDF nor DOCX. They are
	// skipped, not reported as failures.
	ErrUnsupportedKind = errors.New("unsupported file kind")
	// ErrOutputCollision marks an input whose derived output path is
	// already claimed by another input of the same batch.
	ErrOutputCollision = errors.New("output path already claimed by another input")
)

// ParseKind maps a file name to its Kind. Matching is case-sensitive unless
// ignoreCase is set, so "report.PDF" is unsupported by default.
func ParseKind(name string, ignoreCase bool) (Kind, error) {
	ext := filepath.Ext(name)
	if ignoreCase {
		ext = strings.ToLower(ext)
	}
	switch ext {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrUnsupportedKind)
}

// SourceDocument is an input file discovered in the input directory.
type SourceDocument struct {
	Path string
	Kind Kind
}

// Content reads the document bytes.
func (d SourceDocument) Content() ([]byte, error) {
	return os.ReadFile(d.Path)
}

// OutputPath derives <outputDir>/<stem>.txt for the document.
func (d SourceDocument) OutputPath(outputDir string) string {
	return OutputPathFor(d.Path, outputDir)
}

// OutputPathFor derives <outputDir>/<stem>.txt for an input path. Leading
// dots belong to the stem, so ".pdf" maps to ".pdf.txt".
func OutputPathFor(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	stem := base
	if strings.Contains(strings.TrimLeft(base, "."), ".") {
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(outputDir, stem+".txt")
}

// Status is the outcome of one extraction.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Method records which path produced an output file.
type Method string

const (
	MethodDirect Method = "direct"
	MethodOCR    Method = "ocr"
)

// ExtractionResult pairs a document with its output file. A result is never
// mutated after creation; the quality gate produces new results instead.
type ExtractionResult struct {
	Document   SourceDocument
	OutputPath string
	Status     Status
	Method     Method
	// Pages is the number of PDF pages written to OutputPath; zero for DOCX.
	Pages int
	// Err is set when Status is StatusFailed.
	Err error
	// OCRErr is set when the OCR path stopped early. The output then holds a
	// prefix of the document and the result still counts as succeeded.
	OCRErr error
}

func (r ExtractionResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// ExtractionError is the ExtractionFailed case: any non-corruption failure
// of direct extraction, or a failure of the task around it.
type ExtractionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// OCRError is the OcrFailed case. Page is the 1-based page being processed
// when the failure happened, or 0 when it happened before the first page.
type OCRError struct {
	Path string
	Page int
	Err  error
}

func (e *OCRError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("ocr %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("ocr %s page %d: %v", e.Path, e.Page, e.Err)
}

func (e *OCRError) Unwrap() error { return e.Err }

func failed(doc SourceDocument, outputPath, reason string, err error) ExtractionResult {
	return ExtractionResult{
		Document:   doc,
		OutputPath: outputPath,
		Status:     StatusFailed,
		Err:        &ExtractionError{Path: doc.Path, Reason: reason, Err: err},
	}
}
