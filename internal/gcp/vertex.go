package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are an optical character recognition engine. You transcribe the text visible in a scanned document page exactly as printed, without translating, summarizing, or correcting it."
const OCRUserPrompt = `Transcribe all text on the provided page image.

Follow these rules precisely:
1.  Output one line of text per printed line, in reading order from top to bottom.
2.  Preserve the original language and punctuation, including Chinese full-width punctuation.
3.  Do not describe images, do not add headings, commentary, markdown, or code fences.
4.  If the page contains no text, return an empty response.`
const OCROrientationHint = `
The page may be rotated or upside down. Read it in its correct orientation before transcribing.`

// VertexClient holds the pre-configured generative models for the converter.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a new client holding the OCR model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0), // Transcription must be deterministic.
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
