package convert

import (
	"context"
	"log/slog"
	"os"

	"github.com/Lllllllleong/doctextflow/internal/metrics"
)

// RepairReport summarizes a QualityGate pass.
type RepairReport struct {
	Checked  int
	Repaired []ExtractionResult
	Failed   []ExtractionResult
}

// QualityGate reprocesses outputs that are too small to be a plausible
// extraction, e.g. an image-only PDF whose text layer was empty.
type QualityGate struct {
	ocr       *OCRExtractor
	threshold int64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewQualityGate(ocr *OCRExtractor, threshold int64, logger *slog.Logger, m *metrics.Metrics) *QualityGate {
	if threshold <= 0 {
		threshold = DefaultSizeThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QualityGate{ocr: ocr, threshold: threshold, logger: logger, metrics: m}
}

// VerifyAndRepair runs sequentially over results. Every succeeded result
// whose output is smaller than the threshold is re-run through OCR regardless
// of its kind or original method, and the output is replaced with the
// normalized OCR text. When OCR fails the existing output is left untouched.
func (q *QualityGate) VerifyAndRepair(ctx context.Context, results []ExtractionResult) RepairReport {
	var report RepairReport
	for _, res := range results {
		if !res.Succeeded() {
			continue
		}
		report.Checked++

		logCtx := q.logger.With("path", res.Document.Path, "output", res.OutputPath)
		info, err := os.Stat(res.OutputPath)
		if err != nil {
			logCtx.Error("Cannot stat output.", "error", err)
			report.Failed = append(report.Failed, failed(res.Document, res.OutputPath, "stat output", err))
			q.metrics.ObserveRepair("failed")
			continue
		}
		if info.Size() >= q.threshold {
			continue
		}

		logCtx.Warn("Found file smaller than threshold, reprocessing with OCR.", "size", info.Size(), "threshold", q.threshold)
		repaired, ok := q.repair(ctx, res, logCtx)
		if !ok {
			report.Failed = append(report.Failed, repaired)
			q.metrics.ObserveRepair("failed")
			continue
		}
		report.Repaired = append(report.Repaired, repaired)
		q.metrics.ObserveRepair("repaired")
		logCtx.Info("Reprocessed and saved.", "pages", repaired.Pages)
	}
	return report
}

func (q *QualityGate) repair(ctx context.Context, res ExtractionResult, logCtx *slog.Logger) (ExtractionResult, bool) {
	staging := res.OutputPath + ".ocr.tmp"
	defer os.Remove(staging)

	pages, err := q.ocr.Extract(ctx, res.Document.Path, staging)
	if err != nil {
		return ExtractionResult{
			Document:   res.Document,
			OutputPath: res.OutputPath,
			Status:     StatusFailed,
			Method:     MethodOCR,
			Pages:      pages,
			Err:        err,
			OCRErr:     err,
		}, false
	}
	if err := normalizeInto(staging, res.OutputPath); err != nil {
		logCtx.Error("Error saving reprocessed output.", "error", err)
		return failed(res.Document, res.OutputPath, "replace output", err), false
	}
	return ExtractionResult{
		Document:   res.Document,
		OutputPath: res.OutputPath,
		Status:     StatusSucceeded,
		Method:     MethodOCR,
		Pages:      pages,
	}, true
}
