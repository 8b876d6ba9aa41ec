package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lllllllleong/doctextflow/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// BatchReport is the outcome of one Batch run. Converted and Failed are in
// completion order.
type BatchReport struct {
	Converted []ExtractionResult
	Failed    []ExtractionResult
	// Skipped lists entries that are not eligible inputs.
	Skipped []string
}

// Batch fans the eligible files of a directory out over a bounded pool of
// workers. A failing document never affects its siblings.
type Batch struct {
	extractor *Extractor
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewBatch(extractor *Extractor, opts Options, logger *slog.Logger, m *metrics.Metrics) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		extractor: extractor,
		opts:      opts.withDefaults(),
		logger:    logger,
		metrics:   m,
	}
}

type task struct {
	doc    SourceDocument
	output string
}

// Run converts every eligible file directly inside inputDir into outputDir
// and blocks until all of them are done. The error is non-nil only when
// inputDir itself cannot be listed.
func (b *Batch) Run(ctx context.Context, inputDir, outputDir string) (*BatchReport, error) {
	tasks, report, err := b.plan(inputDir, outputDir)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Starting batch.", "inputDir", inputDir, "outputDir", outputDir,
		"documents", len(tasks), "skipped", len(report.Skipped), "maxWorkers", b.opts.MaxWorkers)

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(b.opts.MaxWorkers)
	for _, t := range tasks {
		eg.Go(func() error {
			res := b.runTask(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if res.Succeeded() {
				report.Converted = append(report.Converted, res)
			} else {
				report.Failed = append(report.Failed, res)
			}
			// Per-document failures are recorded, never returned, so the
			// group does not stop the remaining tasks.
			return nil
		})
	}
	_ = eg.Wait()

	b.logger.Info("Batch complete.", "converted", len(report.Converted), "failed", len(report.Failed))
	return report, nil
}

// plan lists inputDir and claims one output path per eligible input. When two
// inputs derive the same output path, the first in name order keeps it.
func (b *Batch) plan(inputDir, outputDir string) ([]task, *BatchReport, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list input directory %s: %w", inputDir, err)
	}

	report := &BatchReport{}
	claimed := make(map[string]string)
	var tasks []task
	for _, entry := range entries {
		path := filepath.Join(inputDir, entry.Name())
		if entry.IsDir() {
			report.Skipped = append(report.Skipped, path)
			continue
		}
		kind, err := ParseKind(entry.Name(), b.opts.IgnoreExtensionCase)
		if err != nil {
			report.Skipped = append(report.Skipped, path)
			continue
		}
		doc := SourceDocument{Path: path, Kind: kind}
		output := doc.OutputPath(outputDir)
		if owner, ok := claimed[output]; ok {
			b.logger.Error("Output path collision, skipping input.", "path", path, "output", output, "claimedBy", owner)
			report.Failed = append(report.Failed,
				failed(doc, output, "claim output", fmt.Errorf("%s: %w", owner, ErrOutputCollision)))
			continue
		}
		claimed[output] = path
		tasks = append(tasks, task{doc: doc, output: output})
	}
	return tasks, report, nil
}

func (b *Batch) runTask(ctx context.Context, t task) (res ExtractionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failed(t.doc, t.output, "task panicked", fmt.Errorf("%v", r))
			b.logger.Error("Error processing file.", "path", t.doc.Path, "error", res.Err)
		}
		method := string(res.Method)
		if method == "" {
			method = "none"
		}
		b.metrics.ObserveDocument(string(t.doc.Kind), method, string(res.Status), time.Since(start))
	}()

	if b.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.TaskTimeout)
		defer cancel()
	}

	res = b.extractor.Extract(ctx, t.doc, t.output)
	if !res.Succeeded() {
		return res
	}
	if err := normalizeInto(t.output, t.output); err != nil {
		b.logger.Error("Error normalizing output.", "path", t.doc.Path, "output", t.output, "error", err)
		return failed(t.doc, t.output, "normalize output", err)
	}
	b.logger.Info("Processed and saved.", "path", t.doc.Path, "output", filepath.Base(t.output), "method", res.Method)
	return res
}

// IsCollision reports whether a failed result was never dispatched because
// its output path belonged to another input.
func IsCollision(res ExtractionResult) bool {
	return errors.Is(res.Err, ErrOutputCollision)
}
