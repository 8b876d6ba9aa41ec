package convert

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/doctextflow/internal/metrics"
)

// Capabilities are the external collaborators the pipeline drives.
type Capabilities struct {
	TextLayer  TextLayerReader
	Paragraphs ParagraphReader
	Rasterizer Rasterizer
	Recognizer Recognizer
}

// Report is the outcome of Converter.Convert.
type Report struct {
	Batch   *BatchReport
	Repairs RepairReport
}

// Converter runs a Batch and then, once every batch task has finished, the
// QualityGate over the converted outputs.
type Converter struct {
	batch *Batch
	gate  *QualityGate
}

func New(caps Capabilities, opts Options, logger *slog.Logger, m *metrics.Metrics) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	ocr := NewOCRExtractor(caps.Rasterizer, caps.Recognizer, opts.DPI, logger, m)
	extractor := NewExtractor(caps.TextLayer, caps.Paragraphs, ocr, logger)
	return &Converter{
		batch: NewBatch(extractor, opts, logger, m),
		gate:  NewQualityGate(ocr, opts.SizeThreshold, logger, m),
	}
}

func (c *Converter) Convert(ctx context.Context, inputDir, outputDir string) (*Report, error) {
	batch, err := c.batch.Run(ctx, inputDir, outputDir)
	if err != nil {
		return nil, err
	}
	c.batch.logger.Info("Checking small files...")
	repairs := c.gate.VerifyAndRepair(ctx, batch.Converted)
	return &Report{Batch: batch, Repairs: repairs}, nil
}

// Results returns the final result of every converted document: the quality
// gate's replacement where one was made, the batch result otherwise.
func (r *Report) Results() []ExtractionResult {
	if r == nil || r.Batch == nil {
		return nil
	}
	repaired := make(map[string]ExtractionResult, len(r.Repairs.Repaired))
	for _, res := range r.Repairs.Repaired {
		repaired[res.OutputPath] = res
	}
	out := make([]ExtractionResult, 0, len(r.Batch.Converted))
	for _, res := range r.Batch.Converted {
		if rep, ok := repaired[res.OutputPath]; ok {
			res = rep
		}
		out = append(out, res)
	}
	return out
}
