package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/doctextflow/internal/metrics"
	"github.com/Lllllllleong/doctextflow/internal/textnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeededResult(t *testing.T, dir, name string, kind Kind, content string) ExtractionResult {
	t.Helper()
	doc := SourceDocument{Path: filepath.Join(dir, name), Kind: kind}
	out := doc.OutputPath(dir)
	require.NoError(t, os.WriteFile(out, []byte(content), 0o644))
	return ExtractionResult{Document: doc, OutputPath: out, Status: StatusSucceeded, Method: MethodDirect}
}

func TestQualityGateRepairsSmallOutputs(t *testing.T) {
	dir := t.TempDir()
	raster := newFakeRasterizer(map[string]rasterScript{
		"image-only.pdf": {pages: 2},
		"memo.docx":      {pages: 1},
		"big.pdf":        {pages: 9},
	})
	gate := NewQualityGate(NewOCRExtractor(raster, &fakeRecognizer{}, 0, nil, nil), 100, nil, metrics.New())

	large := strings.Repeat("x", 100)
	results := []ExtractionResult{
		succeededResult(t, dir, "image-only.pdf", KindPDF, "p1"),
		succeededResult(t, dir, "memo.docx", KindDOCX, "short"),
		succeededResult(t, dir, "big.pdf", KindPDF, large),
		{Document: SourceDocument{Path: filepath.Join(dir, "gone.pdf"), Kind: KindPDF}, Status: StatusFailed},
	}

	report := gate.VerifyAndRepair(context.Background(), results)

	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Repaired, 2)
	assert.Empty(t, report.Failed)
	for _, r := range report.Repaired {
		assert.Equal(t, MethodOCR, r.Method)
		assert.True(t, r.Succeeded())
	}

	assert.Equal(t, textnorm.Normalize(ocrText("image-only.pdf", 2)), readFile(t, filepath.Join(dir, "image-only.txt")))
	assert.Equal(t, textnorm.Normalize(ocrText("memo.docx", 1)), readFile(t, filepath.Join(dir, "memo.txt")))
	assert.Equal(t, large, readFile(t, filepath.Join(dir, "big.txt")), "outputs at the threshold stay untouched")
	assert.Zero(t, raster.Calls("big.pdf"))
	assert.Zero(t, raster.Calls("gone.pdf"))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestQualityGateKeepsOutputWhenOCRFails(t *testing.T) {
	dir := t.TempDir()
	raster := newFakeRasterizer(map[string]rasterScript{"flaky.pdf": {pages: 3, failAt: 2}})
	gate := NewQualityGate(NewOCRExtractor(raster, &fakeRecognizer{}, 0, nil, nil), 0, nil, nil)

	res := succeededResult(t, dir, "notes.docx", KindDOCX, "short docx text")
	flaky := succeededResult(t, dir, "flaky.pdf", KindPDF, "tiny")

	report := gate.VerifyAndRepair(context.Background(), []ExtractionResult{res, flaky})

	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Repaired)
	require.Len(t, report.Failed, 2)
	for _, r := range report.Failed {
		var ocrErr *OCRError
		assert.ErrorAs(t, r.OCRErr, &ocrErr)
	}
	assert.Equal(t, "short docx text", readFile(t, res.OutputPath))
	assert.Equal(t, "tiny", readFile(t, flaky.OutputPath))
	assert.NoFileExists(t, flaky.OutputPath+".ocr.tmp")
}

func TestQualityGateMissingOutput(t *testing.T) {
	dir := t.TempDir()
	gate := NewQualityGate(NewOCRExtractor(newFakeRasterizer(nil), &fakeRecognizer{}, 0, nil, nil), 0, nil, nil)
	doc := SourceDocument{Path: filepath.Join(dir, "x.pdf"), Kind: KindPDF}

	report := gate.VerifyAndRepair(context.Background(), []ExtractionResult{
		{Document: doc, OutputPath: filepath.Join(dir, "x.txt"), Status: StatusSucceeded},
	})

	require.Len(t, report.Failed, 1)
	assert.ErrorContains(t, report.Failed[0].Err, "stat output")
}

func TestConverterEndToEnd(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInputs(t, in, "text.pdf", "scanned.pdf", "memo.docx", "readme.md")

	long := strings.Repeat("正文内容，", 40)
	caps := Capabilities{
		TextLayer: &fakeTextLayer{docs: map[string]layerScript{
			"text.pdf":    {pages: []string{long}},
			"scanned.pdf": {pages: []string{" ", ""}},
		}},
		Paragraphs: &fakeParagraphs{docs: map[string][]string{"memo.docx": {long}}},
		Rasterizer: newFakeRasterizer(map[string]rasterScript{"scanned.pdf": {pages: 2}}),
		Recognizer: &fakeRecognizer{},
	}
	c := New(caps, Options{SizeThreshold: 64, MaxWorkers: 3}, nil, metrics.New())

	report, err := c.Convert(context.Background(), in, out)

	require.NoError(t, err)
	assert.Len(t, report.Batch.Converted, 3)
	assert.Equal(t, []string{filepath.Join(in, "readme.md")}, report.Batch.Skipped)
	assert.Equal(t, 3, report.Repairs.Checked)
	require.Len(t, report.Repairs.Repaired, 1)
	assert.Equal(t, "scanned.pdf", filepath.Base(report.Repairs.Repaired[0].Document.Path))

	assert.Equal(t, textnorm.Normalize(long), readFile(t, filepath.Join(out, "text.txt")))
	assert.Equal(t, textnorm.Normalize(ocrText("scanned.pdf", 2)), readFile(t, filepath.Join(out, "scanned.txt")))
}

func TestReportResultsPreferRepairs(t *testing.T) {
	doc := SourceDocument{Path: "in/a.pdf", Kind: KindPDF}
	direct := ExtractionResult{Document: doc, OutputPath: "out/a.txt", Status: StatusSucceeded, Method: MethodDirect}
	other := ExtractionResult{Document: SourceDocument{Path: "in/b.docx", Kind: KindDOCX}, OutputPath: "out/b.txt", Status: StatusSucceeded, Method: MethodDirect}
	repaired := ExtractionResult{Document: doc, OutputPath: "out/a.txt", Status: StatusSucceeded, Method: MethodOCR, Pages: 3}

	report := &Report{
		Batch:   &BatchReport{Converted: []ExtractionResult{direct, other}},
		Repairs: RepairReport{Checked: 2, Repaired: []ExtractionResult{repaired}},
	}

	assert.Equal(t, []ExtractionResult{repaired, other}, report.Results())
	assert.Nil(t, (*Report)(nil).Results())
}
