package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/doctextflow/internal/convert"
	"github.com/Lllllllleong/doctextflow/internal/docx"
	"github.com/Lllllllleong/doctextflow/internal/gcp"
	"github.com/Lllllllleong/doctextflow/internal/metrics"
	"github.com/Lllllllleong/doctextflow/internal/models"
	"github.com/Lllllllleong/doctextflow/internal/pdftext"
	"github.com/Lllllllleong/doctextflow/internal/raster"
	"github.com/Lllllllleong/doctextflow/internal/recognize"
)

type ConverterConfig struct {
	ProjectID        string
	OutputBucket     string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
	OCREngine        string
	OCRLanguages     []string
	VertexAIRegion   string
	VertexModel      string
	Options          convert.Options
}

// ConverterFunction converts documents uploaded to a bucket into text objects.
type ConverterFunction struct {
	storageClient    *storage.Client
	store            *gcp.ConversionStore
	executionsClient *executions.Client
	vertexClient     *gcp.VertexClient
	converter        *convert.Converter
	config           ConverterConfig
}

type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func loadConverterConfig() (ConverterConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return ConverterConfig{}, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := ConverterConfig{
		ProjectID:        projectID,
		OutputBucket:     gcp.GetEnv("OUTPUT_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "conversions"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		OCREngine:        gcp.GetEnv("OCR_ENGINE", "tesseract"),
		OCRLanguages:     gcp.GetEnvList("OCR_LANGUAGES", recognize.DefaultLanguages),
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:      gcp.GetEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		Options: convert.Options{
			MaxWorkers:          1,
			SizeThreshold:       int64(gcp.GetEnvInt("SIZE_THRESHOLD_BYTES", convert.DefaultSizeThreshold)),
			TaskTimeout:         time.Duration(gcp.GetEnvInt("TASK_TIMEOUT_SECONDS", 480)) * time.Second,
			IgnoreExtensionCase: strings.EqualFold(gcp.GetEnv("IGNORE_EXTENSION_CASE", "false"), "true"),
			DPI:                 gcp.GetEnvInt("OCR_DPI", convert.DefaultDPI),
		},
	}
	if config.OutputBucket == "" {
		return ConverterConfig{}, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}
	if config.OCREngine != "tesseract" && config.OCREngine != "vertex" {
		return ConverterConfig{}, fmt.Errorf("OCR_ENGINE must be tesseract or vertex, got %q", config.OCREngine)
	}
	return config, nil
}

func NewConverter(ctx context.Context) (*ConverterFunction, error) {
	config, err := loadConverterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &ConverterFunction{
		store:         gcp.NewConversionStore(firestoreClient, config.CollectionName),
		storageClient: storageClient,
		config:        config,
	}
	if config.WorkflowID != "" {
		f.executionsClient, err = executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
	}

	var recognizer convert.Recognizer
	switch config.OCREngine {
	case "vertex":
		f.vertexClient, err = gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		recognizer = recognize.NewVertex(f.vertexClient.OCRModel)
	default:
		recognizer = recognize.NewTesseract(config.OCRLanguages, config.Options.MaxWorkers)
	}

	logger := slog.Default()
	f.converter = convert.New(convert.Capabilities{
		TextLayer:  pdftext.New(),
		Paragraphs: docx.New(),
		Rasterizer: raster.NewPoppler(logger),
		Recognizer: recognizer,
	}, config.Options, logger, metrics.New())

	slog.Info("Converter logic initialized.", "ocrEngine", config.OCREngine, "workflowId", config.WorkflowID)
	return f, nil
}

func (f *ConverterFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	filename := path.Base(e.Name)
	kind, err := convert.ParseKind(filename, f.config.Options.IgnoreExtensionCase)
	if err != nil {
		logCtx.Info("Skipping object that is not a PDF or DOCX.")
		return nil
	}
	logCtx.Info("Processing new GCS object.", "kind", kind)

	tempDir, err := os.MkdirTemp("", "doc-converter-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inputDir, outputDir := filepath.Join(tempDir, "in"), filepath.Join(tempDir, "out")
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	sourcePath := filepath.Join(inputDir, filename)
	if err := gcp.DownloadObject(ctx, f.storageClient.Bucket(e.Bucket), e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	docID, err := f.store.FindConverted(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if docID != "" {
		logCtx.Info("Document already converted. Skipping.", "existingDocId", docID)
		return nil
	}

	pageCount := 0
	if kind == convert.KindPDF {
		if n, err := api.PageCountFile(sourcePath); err == nil {
			pageCount = n
		} else {
			logCtx.Warn("pdfcpu could not read the page count.", "error", err)
		}
	}

	docRef, err := f.store.Create(ctx, models.Document{
		FileHash:         fileHash,
		OriginalFilename: e.Name,
		Kind:             string(kind),
		PageCount:        pageCount,
	})
	if err != nil {
		logCtx.Error("Failed to create initial Firestore document", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", docRef.ID)

	report, err := f.converter.Convert(ctx, inputDir, outputDir)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "conversion could not start", err)
	}
	if len(report.Batch.Failed) > 0 {
		return f.handleError(ctx, logCtx, docRef, "conversion failed", report.Batch.Failed[0].Err)
	}
	results := report.Results()
	if len(results) != 1 {
		return f.handleError(ctx, logCtx, docRef, "conversion produced no output", fmt.Errorf("%d results", len(results)))
	}
	res := results[0]
	repaired := len(report.Repairs.Repaired) > 0

	objectName := outputObjectName(docRef.ID, res.OutputPath)
	bucket := f.storageClient.Bucket(f.config.OutputBucket)
	if err := gcp.UploadFile(ctx, bucket, res.OutputPath, objectName, "text/plain; charset=utf-8"); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to upload converted text", err)
	}
	outputURI := fmt.Sprintf("gs://%s/%s", f.config.OutputBucket, objectName)

	if err := f.saveManifest(ctx, bucket, docRef.ID, e.Name, fileHash, res, repaired); err != nil {
		logCtx.Warn("Failed to save conversion manifest.", "error", err)
	}

	outcome := models.ConversionOutcome{Method: string(res.Method), Repaired: repaired, OutputURI: outputURI}
	if res.OCRErr != nil {
		outcome.OCRError = res.OCRErr.Error()
	}
	if err := f.store.MarkConverted(ctx, docRef, outcome); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to update status to CONVERTED", err)
	}
	logCtx.Info("Document converted.", "outputUri", outputURI, "method", res.Method, "repaired", repaired)

	if err := f.triggerWorkflow(ctx, logCtx, docRef, models.ConversionWorkflowArgs{
		DocumentID:   docRef.ID,
		OutputGCSUri: outputURI,
		Method:       string(res.Method),
		PageCount:    pageCount,
	}); err != nil {
		return err
	}
	return nil
}

func (f *ConverterFunction) saveManifest(ctx context.Context, bucket *storage.BucketHandle, docID, filename, fileHash string, res convert.ExtractionResult, repaired bool) error {
	manifest := models.ConversionManifest{
		DocumentID:       docID,
		OriginalFilename: filename,
		FileHash:         fileHash,
		Method:           string(res.Method),
		Repaired:         repaired,
		Pages:            res.Pages,
	}
	if res.OCRErr != nil {
		manifest.OCRError = res.OCRErr.Error()
	}
	if info, err := os.Stat(res.OutputPath); err == nil {
		manifest.OutputBytes = info.Size()
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return gcp.SaveToGCSAtomically(ctx, bucket, path.Join(docID, "manifest.json"), string(body))
}

func (f *ConverterFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, args models.ConversionWorkflowArgs) error {
	if f.executionsClient == nil {
		return nil
	}
	logCtx.Info("Triggering workflow.", "workflowId", f.config.WorkflowID)
	parent := gcp.WorkflowParent(f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID)
	execName, err := gcp.TriggerWorkflow(ctx, f.executionsClient, parent, args)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if err := f.store.RecordExecution(ctx, docRef, execName); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "error", err)
	}
	return nil
}

func (f *ConverterFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.store.MarkFailed(ctx, docRef, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s", fullError)
}

// outputObjectName places the text next to its manifest: <docID>/<stem>.txt.
func outputObjectName(docID, outputPath string) string {
	return path.Join(docID, filepath.Base(outputPath))
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
