package recognize

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/doctextflow/internal/convert"
	"github.com/Lllllllleong/doctextflow/internal/gcp"
)

type fakeGenerator struct {
	reply string
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(f.reply)}},
		}},
	}, nil
}

func TestVertexRecognize(t *testing.T) {
	gen := &fakeGenerator{reply: "```\n第一行，文字\n\n  second line  \n```"}
	img := convert.PageImage{Page: 2, DPI: 300, PNG: []byte{0x89, 'P', 'N', 'G'}}

	lines, err := NewVertex(gen).Recognize(context.Background(), img, true)

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "第一行，文字", lines[0].Text)
	assert.Equal(t, "second line", lines[1].Text)

	require.Len(t, gen.parts, 2)
	blob, ok := gen.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, img.PNG, blob.Data)
	assert.Contains(t, string(gen.parts[1].(genai.Text)), gcp.OCROrientationHint)
}

func TestVertexRecognizeWithoutOrientationHint(t *testing.T) {
	gen := &fakeGenerator{reply: "text"}

	_, err := NewVertex(gen).Recognize(context.Background(), convert.PageImage{Page: 1}, false)

	require.NoError(t, err)
	assert.NotContains(t, string(gen.parts[1].(genai.Text)), gcp.OCROrientationHint)
}

func TestVertexRecognizeErrors(t *testing.T) {
	_, err := NewVertex(&fakeGenerator{err: errors.New("quota exceeded")}).
		Recognize(context.Background(), convert.PageImage{Page: 4}, true)
	assert.ErrorContains(t, err, "quota exceeded")

	_, err = NewVertex(&fakeGenerator{reply: "As a large language model, I cannot read this."}).
		Recognize(context.Background(), convert.PageImage{Page: 5}, true)
	assert.ErrorContains(t, err, "refusal for page 5")
}

func TestResponseTextEmpty(t *testing.T) {
	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
	assert.Empty(t, splitLines(""))
}
