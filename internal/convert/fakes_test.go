package convert

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type layerScript struct {
	pages  []string
	status TextLayerStatus
	// emitBefore is how many pages are emitted before a non-OK status.
	emitBefore int
}

type fakeTextLayer struct {
	docs map[string]layerScript
}

func (f *fakeTextLayer) ReadTextLayer(_ context.Context, doc SourceDocument, emit func(int, string) error) TextLayerResult {
	script, ok := f.docs[filepath.Base(doc.Path)]
	if !ok {
		return TextLayerResult{Status: TextLayerFailed, Err: os.ErrNotExist}
	}
	if script.status != TextLayerOK {
		for i := 0; i < script.emitBefore && i < len(script.pages); i++ {
			if err := emit(i+1, script.pages[i]); err != nil {
				return TextLayerResult{Status: TextLayerFailed, Pages: i, Err: err}
			}
		}
		return TextLayerResult{Status: script.status, Pages: script.emitBefore, Err: fmt.Errorf("fake %s", script.status)}
	}
	for i, p := range script.pages {
		if err := emit(i+1, p); err != nil {
			return TextLayerResult{Status: TextLayerFailed, Pages: i, Err: err}
		}
	}
	return TextLayerResult{Status: TextLayerOK, Pages: len(script.pages)}
}

type rasterScript struct {
	pages int
	// failAt is the 1-based page whose rendering fails; zero never fails.
	failAt int
}

type fakeRasterizer struct {
	docs map[string]rasterScript

	mu    sync.Mutex
	calls map[string]int
}

func newFakeRasterizer(docs map[string]rasterScript) *fakeRasterizer {
	return &fakeRasterizer{docs: docs, calls: make(map[string]int)}
}

func (f *fakeRasterizer) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRasterizer) Rasterize(_ context.Context, path string, dpi int) iter.Seq2[PageImage, error] {
	name := filepath.Base(path)
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
	return func(yield func(PageImage, error) bool) {
		script, ok := f.docs[name]
		if !ok {
			yield(PageImage{}, fmt.Errorf("cannot render %s", name))
			return
		}
		for p := 1; p <= script.pages; p++ {
			if p == script.failAt {
				yield(PageImage{}, errors.New("render failed"))
				return
			}
			img := PageImage{Page: p, DPI: dpi, PNG: []byte(fmt.Sprintf("%s#%d", name, p))}
			if !yield(img, nil) {
				return
			}
		}
	}
}

// fakeRecognizer returns two lines per page derived from the image bytes.
type fakeRecognizer struct {
	// block makes Recognize wait for the context to end.
	block bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img PageImage, correctOrientation bool) ([]RecognizedLine, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !correctOrientation {
		return nil, errors.New("orientation correction must be enabled")
	}
	return []RecognizedLine{
		{Text: "识别 " + string(img.PNG), Confidence: 0.9},
		{Text: fmt.Sprintf("line two of page %d", img.Page), Confidence: 0.8},
	}, nil
}

func ocrPageText(name string, page int) string {
	return fmt.Sprintf("识别 %s#%d\nline two of page %d\n", name, page, page)
}

func ocrText(name string, pages int) string {
	var b strings.Builder
	for p := 1; p <= pages; p++ {
		b.WriteString(ocrPageText(name, p))
	}
	return b.String()
}

type fakeParagraphs struct {
	docs   map[string][]string
	panics map[string]bool
}

func (f *fakeParagraphs) Paragraphs(_ context.Context, doc SourceDocument) ([]string, error) {
	name := filepath.Base(doc.Path)
	if f.panics[name] {
		panic("broken docx reader")
	}
	paras, ok := f.docs[name]
	if !ok {
		return nil, fmt.Errorf("open %s: not a zip file", name)
	}
	return paras, nil
}

func writeInputs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, n), 0o755))
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("input "+n), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
