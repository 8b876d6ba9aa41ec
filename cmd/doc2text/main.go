package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/Lllllllleong/doctextflow/internal/convert"
	"github.com/Lllllllleong/doctextflow/internal/docx"
	"github.com/Lllllllleong/doctextflow/internal/gcp"
	"github.com/Lllllllleong/doctextflow/internal/metrics"
	"github.com/Lllllllleong/doctextflow/internal/pdftext"
	"github.com/Lllllllleong/doctextflow/internal/raster"
	"github.com/Lllllllleong/doctextflow/internal/recognize"
)

func main() {
	// A missing .env is normal; flags and the environment still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("doc2text failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "doc2text",
		Usage:     "Convert PDF and DOCX files to normalized TXT, with OCR fallback",
		ArgsUsage: "INPUT_DIR OUTPUT_DIR",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-workers", Value: convert.DefaultMaxWorkers, Usage: "maximum number of documents converted concurrently", EnvVars: []string{"DOC2TEXT_MAX_WORKERS"}},
			&cli.Int64Flag{Name: "size-threshold", Value: convert.DefaultSizeThreshold, Usage: "outputs smaller than this many bytes are reprocessed with OCR", EnvVars: []string{"DOC2TEXT_SIZE_THRESHOLD"}},
			&cli.DurationFlag{Name: "timeout", Usage: "per-document time limit (0 disables)", EnvVars: []string{"DOC2TEXT_TIMEOUT"}},
			&cli.BoolFlag{Name: "ignore-ext-case", Usage: "accept .PDF/.DOCX extensions in any case", EnvVars: []string{"DOC2TEXT_IGNORE_EXT_CASE"}},
			&cli.IntFlag{Name: "dpi", Value: convert.DefaultDPI, Usage: "rasterization resolution for OCR", EnvVars: []string{"DOC2TEXT_DPI"}},
			&cli.StringFlag{Name: "ocr-engine", Value: "tesseract", Usage: "OCR engine: tesseract or vertex", EnvVars: []string{"DOC2TEXT_OCR_ENGINE"}},
			&cli.StringSliceFlag{Name: "lang", Value: cli.NewStringSlice(recognize.DefaultLanguages...), Usage: "tesseract languages", EnvVars: []string{"DOC2TEXT_LANG"}},
			&cli.StringFlag{Name: "project", Usage: "GCP project for the vertex engine", EnvVars: []string{"PROJECT_ID"}},
			&cli.StringFlag{Name: "region", Value: "us-central1", Usage: "Vertex AI region", EnvVars: []string{"VERTEX_AI_REGION"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "metrics-file", Usage: "write Prometheus metrics in textfile format on exit", EnvVars: []string{"DOC2TEXT_METRICS_FILE"}},
			&cli.BoolFlag{Name: "strict", Usage: "exit non-zero when any document fails", EnvVars: []string{"DOC2TEXT_STRICT"}},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected INPUT_DIR and OUTPUT_DIR, got %d argument(s)", c.NArg())
	}
	inputDir, outputDir := c.Args().Get(0), c.Args().Get(1)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(c.String("log-level"))}))
	slog.SetDefault(logger)

	if c.Int("max-workers") <= 0 {
		return fmt.Errorf("--max-workers must be positive")
	}
	if c.Int64("size-threshold") <= 0 {
		return fmt.Errorf("--size-threshold must be positive")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	opts := convert.Options{
		MaxWorkers:          c.Int("max-workers"),
		SizeThreshold:       c.Int64("size-threshold"),
		TaskTimeout:         c.Duration("timeout"),
		IgnoreExtensionCase: c.Bool("ignore-ext-case"),
		DPI:                 c.Int("dpi"),
	}

	recognizer, closeRecognizer, err := newRecognizer(c, opts.MaxWorkers)
	if err != nil {
		return err
	}
	defer closeRecognizer()

	m := metrics.New()
	converter := convert.New(convert.Capabilities{
		TextLayer:  pdftext.New(),
		Paragraphs: docx.New(),
		Rasterizer: raster.NewPoppler(logger),
		Recognizer: recognizer,
	}, opts, logger, m)

	report, err := converter.Convert(c.Context, inputDir, outputDir)
	if err != nil {
		return err
	}
	if err := m.WriteTextfile(c.String("metrics-file")); err != nil {
		logger.Warn("Failed to write metrics file.", "error", err)
	}

	collisions := 0
	for _, res := range report.Batch.Failed {
		if convert.IsCollision(res) {
			collisions++
			logger.Error("Document not converted, output name already taken.", "path", res.Document.Path, "output", res.OutputPath)
			continue
		}
		logger.Error("Document not converted.", "path", res.Document.Path, "error", res.Err)
	}
	logger.Info("All files processed.",
		"converted", len(report.Batch.Converted),
		"failed", len(report.Batch.Failed),
		"collisions", collisions,
		"skipped", len(report.Batch.Skipped),
		"repaired", len(report.Repairs.Repaired),
		"repairFailed", len(report.Repairs.Failed),
	)
	if c.Bool("strict") && len(report.Batch.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed, %d output collision(s)", len(report.Batch.Failed), collisions)
	}
	return nil
}

// newRecognizer builds the OCR engine once for the whole process; every
// worker shares it.
func newRecognizer(c *cli.Context, workers int) (convert.Recognizer, func(), error) {
	switch engine := c.String("ocr-engine"); engine {
	case "tesseract":
		t := recognize.NewTesseract(c.StringSlice("lang"), workers)
		return t, func() { t.Close() }, nil
	case "vertex":
		vc, err := gcp.NewVertexClient(c.Context, c.String("project"), c.String("region"), gcp.GetEnv("VERTEX_MODEL", ""))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		return recognize.NewVertex(vc.OCRModel), func() { vc.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown --ocr-engine %q", engine)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
