package recognize

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/doctextflow/internal/convert"
	"github.com/Lllllllleong/doctextflow/internal/gcp"
)

// Generator is the part of *genai.GenerativeModel the Vertex engine uses.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Vertex implements convert.Recognizer with a Gemini model on Vertex AI.
type Vertex struct {
	model Generator
}

func NewVertex(model Generator) *Vertex {
	return &Vertex{model: model}
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

func (v *Vertex) Recognize(ctx context.Context, img convert.PageImage, correctOrientation bool) ([]convert.RecognizedLine, error) {
	prompt := gcp.OCRUserPrompt
	if correctOrientation {
		prompt += gcp.OCROrientationHint
	}
	resp, err := v.model.GenerateContent(ctx, genai.ImageData("png", img.PNG), genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate transcription for page %d: %w", img.Page, err)
	}

	text := responseText(resp)
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return nil, fmt.Errorf("gemini response indicates refusal for page %d", img.Page)
		}
	}
	return splitLines(text), nil
}

// responseText concatenates the text parts of the first candidate and strips
// code fences the model sometimes wraps its answer in.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}

	s := strings.TrimSpace(b.String())
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func splitLines(text string) []convert.RecognizedLine {
	var lines []convert.RecognizedLine
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, convert.RecognizedLine{Text: l})
	}
	return lines
}
